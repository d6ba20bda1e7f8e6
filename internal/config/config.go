// Package config loads memengine's typed configuration from environment
// variables, following the teacher's getEnv/getBoolEnv/getIntEnv helper
// pattern. Precedence is explicit (caller-constructed struct) > env > default
// (spec §9).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"memengine/internal/memengine/batch"
	"memengine/internal/memengine/cost"
	"memengine/internal/memengine/decay"
	"memengine/internal/memengine/extract"
	"memengine/internal/memengine/lifecycle"
	"memengine/internal/memengine/noise"
	"memengine/internal/memengine/ports"
)

// Config bundles every component's typed configuration plus connection
// settings for the storage/cache adapters.
type Config struct {
	Port      string
	MongoURI  string
	RedisURL  string
	RulesPath string

	Batch     batch.Config
	Noise     noise.Config
	Decay     decay.Config
	Lifecycle lifecycle.Config
	Scheduler lifecycle.SchedulerConfig
	PRIME     extract.PRIMEConfig

	// SchedulerSeedAgents lists the (userId, agentId) pairs the lifecycle
	// scheduler registers at startup, as "userId:agentId" pairs.
	SchedulerSeedAgents []string
}

// Load reads environment overrides declared in spec §6, falling back to
// defaults for anything unset.
func Load() *Config {
	costBudget := getOptionalFloatEnv("BATCH_COST_BUDGET")

	archiveCfg := ports.ArchiveConfig{
		Enabled:    getBoolEnv("ARCHIVE_ENABLED", false),
		KeyPattern: getEnv("ARCHIVE_KEY_PATTERN", ""),
		TTLSeconds: int64(getFloatEnv("ARCHIVE_TTL_HOURS", 0) * 3600),
	}

	return &Config{
		Port:      getEnv("PORT", "8090"),
		MongoURI:  getEnv("MONGO_URI", ""),
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379"),
		RulesPath: getEnv("RULES_PATH", "./rules.json"),

		Batch: batch.Config{
			MaxBatchSize:       getIntEnv("BATCH_MAX_SIZE", 10),
			MinBatchSize:       getIntEnv("BATCH_MIN_SIZE", 1),
			TimeoutMinutes:     getFloatEnv("BATCH_TIMEOUT_MINUTES", 15),
			ExtractionRate:     getFloatEnv("BATCH_EXTRACTION_RATE", 1.0),
			EnableSmallModel:   getBoolEnv("BATCH_ENABLE_SMALL_MODEL", true),
			EnablePremiumModel: getBoolEnv("BATCH_ENABLE_PREMIUM_MODEL", false),
			CostBudget:         costBudget,
			PerAgentRateLimit:  getFloatEnv("BATCH_PER_AGENT_RATE_LIMIT", 1.0),
			Extractors: []cost.ExtractorConfig{
				{
					Type:          "small-llm",
					Enabled:       getBoolEnv("BATCH_ENABLE_SMALL_MODEL", true),
					CostPerMemory: 0.001,
					MaxCost:       getOptionalFloatEnv("EXTRACTOR_SMALL_MAX_COST"),
				},
				{
					Type:          "large-llm",
					Enabled:       getBoolEnv("BATCH_ENABLE_PREMIUM_MODEL", false),
					CostPerMemory: 0.01,
					MaxCost:       getOptionalFloatEnv("EXTRACTOR_LARGE_MAX_COST"),
				},
				{
					Type:             "prime",
					Enabled:          getBoolEnv("PRIME_ENABLED", false),
					Provider:         getEnv("PRIME_PROVIDER", "openai"),
					MaxCost:          getOptionalFloatEnv("EXTRACTOR_PRIME_MAX_COST"),
					QualityThreshold: getOptionalFloatEnv("EXTRACTOR_PRIME_QUALITY_THRESHOLD"),
				},
			},
		},

		Noise: noise.Config{
			MinMessageLength:    getIntEnv("NOISE_MIN_MESSAGE_LENGTH", 3),
			CustomPatterns:      getListEnv("NOISE_CUSTOM_PATTERNS"),
			HeuristicBased:      getBoolEnv("NOISE_HEURISTIC_BASED", true),
			PerplexityThreshold: getFloatEnv("NOISE_PERPLEXITY_THRESHOLD", 5.0),
			LanguageAgnostic:    getBoolEnv("NOISE_LANGUAGE_AGNOSTIC", false),
			LLMProvider:         getEnv("NOISE_LLM_PROVIDER", ""),
			LLMModel:            getEnv("NOISE_LLM_MODEL", ""),
		},

		Decay: decay.Config{
			DefaultDecayRate: getFloatEnv("DECAY_DEFAULT_RATE", 0.1),
			MinImportance:    getFloatEnv("DECAY_MIN_IMPORTANCE", 0.05),
			DeleteThreshold:  getFloatEnv("DECAY_DELETE_THRESHOLD", 0.1),
			Archive:          archiveCfg,
		},

		Lifecycle: lifecycle.Config{
			Promotion: lifecycle.PromotionConfig{
				EpisodicToSemanticDays:     getFloatEnv("PROMOTION_EPISODIC_TO_SEMANTIC_DAYS", 7),
				MinImportanceForPromotion:  getFloatEnv("PROMOTION_MIN_IMPORTANCE", 0.6),
				MinAccessCountForPromotion: int64(getIntEnv("PROMOTION_MIN_ACCESS_COUNT", 3)),
				PreserveOriginal:           getBoolEnv("PROMOTION_PRESERVE_ORIGINAL", false),
			},
			Archive: archiveCfg,
			Limit: lifecycle.LimitConfig{
				MaxMemoriesPerAgent: getIntEnv("LIMIT_MAX_MEMORIES_PER_AGENT", 0),
			},
		},

		Scheduler: lifecycle.SchedulerConfig{
			Decay: lifecycle.OperationSchedule{
				Interval:     time.Duration(getFloatEnv("SCHEDULER_DECAY_INTERVAL_HOURS", 6) * float64(time.Hour)),
				CronExpr:     getEnv("SCHEDULER_DECAY_CRON_EXPR", ""),
				MaxRetries:   getIntEnv("SCHEDULER_DECAY_MAX_RETRIES", 3),
				RetryBackoff: time.Duration(getFloatEnv("SCHEDULER_DECAY_RETRY_BACKOFF_SECONDS", 1) * float64(time.Second)),
			},
			Promotion: lifecycle.OperationSchedule{
				Interval:     time.Duration(getFloatEnv("SCHEDULER_PROMOTION_INTERVAL_HOURS", 24) * float64(time.Hour)),
				CronExpr:     getEnv("SCHEDULER_PROMOTION_CRON_EXPR", ""),
				MaxRetries:   getIntEnv("SCHEDULER_PROMOTION_MAX_RETRIES", 3),
				RetryBackoff: time.Duration(getFloatEnv("SCHEDULER_PROMOTION_RETRY_BACKOFF_SECONDS", 1) * float64(time.Second)),
			},
			Cleanup: lifecycle.OperationSchedule{
				Interval:     time.Duration(getFloatEnv("SCHEDULER_CLEANUP_INTERVAL_HOURS", 6) * float64(time.Hour)),
				CronExpr:     getEnv("SCHEDULER_CLEANUP_CRON_EXPR", ""),
				MaxRetries:   getIntEnv("SCHEDULER_CLEANUP_MAX_RETRIES", 3),
				RetryBackoff: time.Duration(getFloatEnv("SCHEDULER_CLEANUP_RETRY_BACKOFF_SECONDS", 1) * float64(time.Second)),
			},
			MaxConcurrentOperations: getIntEnv("SCHEDULER_MAX_CONCURRENT_OPERATIONS", 4),
		},

		PRIME: extract.PRIMEConfig{
			Provider:          getEnv("PRIME_PROVIDER", "openai"),
			APIKey:            getEnv("PRIME_API_KEY", ""),
			DefaultTier:       extract.Tier(getEnv("PRIME_DEFAULT_TIER", "balanced")),
			AutoTierSelection: getBoolEnv("PRIME_AUTO_TIER_SELECTION", true),
			FastMaxChars:      getIntEnv("PRIME_FAST_THRESHOLD", 200),
			AccurateMinChars:  getIntEnv("PRIME_ACCURATE_THRESHOLD", 2000),
			FastModel:         getEnv("PRIME_FAST_MODEL", "gpt-4o-mini"),
			BalancedModel:     getEnv("PRIME_BALANCED_MODEL", "gpt-4o"),
			BalancedModels:    getListEnv("PRIME_BALANCED_MODELS"),
			AccurateModel:     getEnv("PRIME_ACCURATE_MODEL", "gpt-4o"),
			MaxTokens:         getIntEnv("PRIME_MAX_TOKENS", 512),
			FallbackEnabled:   getBoolEnv("PRIME_FALLBACK_ENABLED", true),
			FallbackThreshold: getFloatEnv("PRIME_FALLBACK_THRESHOLD", 0.3),
		},

		SchedulerSeedAgents: getListEnv("SCHEDULER_SEED_AGENTS"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getOptionalFloatEnv parses key as a float64 pointer, returning nil when the
// variable is unset or unparseable (distinguishing "unset" from "0").
func getOptionalFloatEnv(key string) *float64 {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func getListEnv(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
