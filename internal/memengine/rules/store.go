// Package rules holds the in-memory ExtractionRule/DecayRule set loaded from
// a JSON definitions file, hot-reloaded via fsnotify. Grounded on
// startProvidersFileWatcher's directory-watch-plus-debounce pattern in the
// teacher's cmd/server/main.go.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"memengine/internal/memengine/model"
)

// definitions is the on-disk shape of the rules file, keyed by agent id.
type definitions struct {
	Agents map[string]agentRules `json:"agents"`
}

type agentRules struct {
	ExtractionRules []model.ExtractionRule `json:"extractionRules"`
	DecayRules      []model.DecayRule      `json:"decayRules"`
}

// Store serves ExtractionRule/DecayRule lookups, kept current by watching
// its backing file for writes. Implements batch.RuleProvider and
// lifecycle.DecayRuleProvider.
type Store struct {
	path string

	mu   sync.RWMutex
	defs definitions

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewStore loads path once and returns a Store serving it. path may not
// exist yet; in that case the store starts empty and picks up rules on
// first write.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, stop: make(chan struct{})}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading rule definitions: %w", err)
	}
	return s, nil
}

// Watch starts the fsnotify-backed hot-reload loop. Call Close to stop it.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules file watcher: %w", err)
	}

	absPath, err := filepath.Abs(s.path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve rules file path: %w", err)
	}

	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules directory %s: %w", dir, err)
	}

	s.watcher = watcher
	log.Printf("👁️  [RULES] Watching %s for changes (hot-reload enabled)", s.path)

	go s.watchLoop(filename)
	return nil
}

func (s *Store) watchLoop(filename string) {
	var debounceTimer *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case <-s.stop:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := s.reload(); err != nil {
						log.Printf("⚠️ [RULES] Failed to reload %s after change: %v", s.path, err)
						return
					}
					log.Printf("🔄 [RULES] Reloaded rule definitions from %s", s.path)
				})
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ [RULES] File watcher error: %v", err)
		}
	}
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var defs definitions
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("parsing rule definitions: %w", err)
	}

	s.mu.Lock()
	s.defs = defs
	s.mu.Unlock()
	return nil
}

// Rules returns the ExtractionRule set for agentID (spec §6, batch.RuleProvider).
func (s *Store) Rules(ctx context.Context, userID, agentID string) ([]model.ExtractionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ExtractionRule(nil), s.defs.Agents[agentID].ExtractionRules...), nil
}

// DecayRules returns the DecayRule set for agentID (lifecycle.DecayRuleProvider).
func (s *Store) DecayRules(ctx context.Context, userID, agentID string) ([]model.DecayRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.DecayRule(nil), s.defs.Agents[agentID].DecayRules...), nil
}

// Close stops the hot-reload loop.
func (s *Store) Close() error {
	close(s.stop)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
