package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal_relay/pkg/logger"
)

// Store keeps signalId → processed-at in a JSON snapshot on disk. Expired
// entries are pruned lazily on every read; a prune that removed anything
// rewrites the file. A missing or corrupt file is treated as empty so the
// dedup store can never fail a signal.
type Store struct {
	path      string
	retention time.Duration

	mu     sync.Mutex
	cache  map[string]time.Time
	loaded bool

	now func() time.Time
}

func NewStore(path string, retention time.Duration) *Store {
	return &Store{
		path:      path,
		retention: retention,
		cache:     make(map[string]time.Time),
		now:       time.Now,
	}
}

func (s *Store) IsProcessed(ctx context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()
	s.pruneLocked()
	_, ok := s.cache[signalID]
	return ok, nil
}

func (s *Store) MarkProcessed(ctx context.Context, signalID string) error {
	if signalID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()
	s.cache[signalID] = s.now().UTC()
	return s.saveLocked()
}

// ---- storage format ----

type record struct {
	SignalID    string    `json:"signal_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

type snapshot struct {
	UpdatedAt time.Time `json:"updated_at"`
	Signals   []record  `json:"signals"`
}

func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("read %s: %v, starting empty", s.path, err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		logger.Error("decode %s: %v, starting empty", s.path, err)
		return
	}

	s.cache = make(map[string]time.Time, len(snap.Signals))
	for _, r := range snap.Signals {
		if r.SignalID == "" {
			continue
		}
		s.cache[r.SignalID] = r.ProcessedAt
	}
}

func (s *Store) pruneLocked() {
	cutoff := s.now().UTC().Add(-s.retention)
	removed := 0
	for id, at := range s.cache {
		if at.Before(cutoff) {
			delete(s.cache, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.saveLocked(); err != nil {
			logger.Error("rewrite %s after prune: %v", s.path, err)
		}
	}
}

func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	signals := make([]record, 0, len(s.cache))
	for id, at := range s.cache {
		signals = append(signals, record{SignalID: id, ProcessedAt: at})
	}

	snap := snapshot{
		UpdatedAt: s.now().UTC(),
		Signals:   signals,
	}

	b, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path) // atomic swap
}
