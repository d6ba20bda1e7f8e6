package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memengine/adapters/llmport"
	"memengine/adapters/memstore"
	"memengine/adapters/mongostore"
	"memengine/adapters/redisstore"
	"memengine/internal/config"
	"memengine/internal/database"
	"memengine/internal/logging"
	"memengine/internal/memengine/batch"
	"memengine/internal/memengine/cost"
	"memengine/internal/memengine/decay"
	"memengine/internal/memengine/errkind"
	"memengine/internal/memengine/extract"
	"memengine/internal/memengine/lifecycle"
	"memengine/internal/memengine/noise"
	"memengine/internal/memengine/ports"
	"memengine/internal/memengine/rules"
)

// providerBaseURLs maps PRIME_PROVIDER to its OpenAI-compatible API root.
// PRIME's provider set is closed per spec §6 — an unconfigured provider
// fails startup in newLLMPort rather than silently falling back to OpenAI.
var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"ollama":     "http://localhost:11434/v1",
}

const (
	smallModelCostPerMemory = 0.001
	largeModelCostPerMemory = 0.01
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logging.Init()
	log.Println("🚀 Starting memengine...")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (rulesPath: %s)", cfg.RulesPath)

	storage, locker, cleanup, err := buildStorage(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage: %v", err)
	}
	defer cleanup()

	ruleStore, err := rules.NewStore(cfg.RulesPath)
	if err != nil {
		log.Fatalf("❌ Failed to load rule definitions: %v", err)
	}
	if err := ruleStore.Watch(); err != nil {
		log.Printf("⚠️  Rule hot-reload disabled: %v", err)
	}
	defer ruleStore.Close()

	llm, err := newLLMPort(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to build PRIME LLM client: %v", err)
	}

	tracker := cost.NewTracker(storage)
	optimizer := cost.NewOptimizer(tracker)
	noiseFilter := noise.New(cfg.Noise, llm)
	ruleExtractor := extract.NewRuleBasedExtractor()

	var small, large extract.Extractor
	if cfg.Batch.EnableSmallModel {
		small = extract.NewSmall(llm, tracker, smallModelCostPerMemory)
	}
	if cfg.Batch.EnablePremiumModel {
		large = extract.NewLarge(llm, tracker, largeModelCostPerMemory)
	}

	prime := newPRIMEExtractor(cfg, llm, tracker)

	processor := batch.New(cfg.Batch, storage, ruleStore, noiseFilter, ruleExtractor, small, large, prime, tracker, optimizer, locker)

	decayEngine := decay.New(cfg.Decay, storage)
	lifecycleManager := lifecycle.New(cfg.Lifecycle, storage, decayEngine, ruleStore)

	scheduler, err := lifecycle.NewScheduler(lifecycleManager, cfg.Scheduler, nil)
	if err != nil {
		log.Fatalf("❌ Failed to build lifecycle scheduler: %v", err)
	}
	registerSeedAgents(scheduler, cfg)
	scheduler.Start()

	// processor.AddMessage is the ingestion entrypoint; memengine is a
	// library binary here, with transport left to the embedding service.
	_ = processor

	log.Println("✅ memengine started")

	waitForShutdown(scheduler)
}

// newPRIMEExtractor builds the PRIME extractor when an API key is
// configured, pooling across BalancedModels when more than one is given.
// Returns nil when PRIME isn't configured, so batch.New's prime tier is
// simply skipped.
func newPRIMEExtractor(cfg *config.Config, llm ports.LLMPort, tracker *cost.Tracker) extract.Extractor {
	if cfg.PRIME.APIKey == "" {
		return nil
	}

	var pool *extract.ModelPool
	if len(cfg.PRIME.BalancedModels) > 1 {
		candidates := make([]extract.ModelCandidate, len(cfg.PRIME.BalancedModels))
		for i, m := range cfg.PRIME.BalancedModels {
			candidates[i] = extract.ModelCandidate{ModelID: m}
		}
		pool = extract.NewModelPool(candidates, nil)
	}

	prime, err := extract.NewPRIMEExtractor(cfg.PRIME, llm, tracker, pool)
	if err != nil {
		log.Printf("⚠️  PRIME extractor disabled: %v", err)
		return nil
	}
	return prime
}

// registerSeedAgents parses SCHEDULER_SEED_AGENTS entries ("userId:agentId",
// comma-separated) and registers each with the lifecycle scheduler.
// Malformed entries are logged and skipped rather than failing startup.
func registerSeedAgents(scheduler *lifecycle.Scheduler, cfg *config.Config) {
	for _, entry := range cfg.SchedulerSeedAgents {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Printf("⚠️  Skipping malformed SCHEDULER_SEED_AGENTS entry %q (want userId:agentId)", entry)
			continue
		}
		key := lifecycle.AgentKey{UserID: parts[0], AgentID: parts[1]}
		if err := scheduler.Register(key, cfg.Scheduler); err != nil {
			log.Printf("⚠️  Failed to register lifecycle scheduler for %s/%s: %v", parts[0], parts[1], err)
		}
	}
}

// buildStorage picks MongoDB-backed storage when MONGO_URI is configured,
// falling back to an in-process store for local development. Redis, when
// configured, supplies the distributed batch lock on top of whichever
// storage backend is active.
func buildStorage(cfg *config.Config) (ports.StoragePort, batch.DistributedLocker, func(), error) {
	var storage ports.StoragePort
	var cleanupFns []func()

	if cfg.MongoURI != "" {
		db, err := database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			return nil, nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Initialize(ctx); err != nil {
			cancel()
			return nil, nil, nil, err
		}
		cancel()

		storage = mongostore.New(db)
		cleanupFns = append(cleanupFns, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Close(ctx); err != nil {
				log.Printf("⚠️  MongoDB close error: %v", err)
			}
		})
	} else {
		log.Println("⚠️  MONGO_URI not set, using in-process memstore (non-durable)")
		storage = memstore.New()
	}

	var locker batch.DistributedLocker
	if cfg.RedisURL != "" {
		rs, err := redisstore.New(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, distributed batch locking disabled: %v", err)
		} else {
			locker = rs
			cleanupFns = append(cleanupFns, func() {
				if err := rs.Close(); err != nil {
					log.Printf("⚠️  Redis close error: %v", err)
				}
			})
		}
	}

	cleanup := func() {
		for _, fn := range cleanupFns {
			fn()
		}
	}

	return storage, locker, cleanup, nil
}

// newLLMPort builds the LLM client PRIME and the noise filter's LLM-tier
// fallback both call through. The teacher never vendors a provider SDK of
// its own (ClaraVerse drives every provider over plain HTTP against a
// providers.json-style config), so this adapter follows the same shape
// rather than pulling in a provider SDK not otherwise used anywhere in the
// engine.
func newLLMPort(cfg *config.Config) (ports.LLMPort, error) {
	baseURL, ok := providerBaseURLs[cfg.PRIME.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown PRIME provider %q", errkind.ConfigurationError, cfg.PRIME.Provider)
	}
	return llmport.New(baseURL, cfg.PRIME.APIKey, cfg.PRIME.BalancedModel), nil
}

func waitForShutdown(scheduler *lifecycle.Scheduler) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("⏹️  Shutting down memengine...")
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  Lifecycle scheduler shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
