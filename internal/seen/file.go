package seen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "cvewatch/pkg/logx"
)

// fileStore keeps the full seen map in memory and persists it as a single
// JSON object, one key per asset, each value an ordered array (newest first)
// of entries. Writes go to a temp file first and are swapped in with an
// atomic rename, so a crash mid-write never leaves a half-written file.
type fileStore struct {
	cfg Config
	log logx.Logger

	mu      sync.Mutex
	entries map[string][]Entry // newest first per asset
	owner   map[string]string  // advisory id -> first-assigned asset
	dirty   bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("seen store path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		cfg:     cfg,
		log:     log,
		entries: map[string][]Entry{},
		owner:   map[string]string{},
	}
	if err := s.load(path); err != nil {
		// Corrupt state must never fail startup; start empty instead.
		log.Warn("seen state unreadable, starting empty", logx.String("path", path), logx.Err(err))
		s.entries = map[string][]Entry{}
		s.owner = map[string]string{}
	}
	return s, nil
}

func (s *fileStore) load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var raw map[string][]Entry
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	for asset, list := range raw {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].PublishedAt.After(list[j].PublishedAt)
		})
		kept := list[:0]
		for _, e := range list {
			if e.ID == "" {
				continue
			}
			if _, dup := s.owner[e.ID]; dup {
				continue
			}
			e.Asset = asset
			s.owner[e.ID] = asset
			kept = append(kept, e)
		}
		if len(kept) > 0 {
			s.entries[asset] = kept
		}
	}
	return nil
}

func (s *fileStore) IsNew(asset, id string) bool {
	_ = asset // IDs are globally unique; ownership does not affect newness
	s.mu.Lock()
	defer s.mu.Unlock()
	_, known := s.owner[id]
	return !known
}

func (s *fileStore) Register(e Entry) bool {
	if e.ID == "" || e.Asset == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.owner[e.ID]; known {
		return false
	}
	s.owner[e.ID] = e.Asset

	list := s.entries[e.Asset]
	// Insert keeping newest-first order.
	at := sort.Search(len(list), func(i int) bool {
		return list[i].PublishedAt.Before(e.PublishedAt)
	})
	list = append(list, Entry{})
	copy(list[at+1:], list[at:])
	list[at] = e

	// Per-asset cap is enforced on every register, not periodically.
	max := s.cfg.maxFor(e.Asset)
	for len(list) > max {
		evicted := list[len(list)-1]
		list = list[:len(list)-1]
		delete(s.owner, evicted.ID)
	}
	s.entries[e.Asset] = list
	s.dirty = true
	return true
}

func (s *fileStore) Critical() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for _, list := range s.entries {
		for _, e := range list {
			if e.Critical {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

func (s *fileStore) Latest(asset string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[asset]
	if len(list) == 0 {
		return Entry{}, false
	}
	return list[0], true
}

func (s *fileStore) Count(asset string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[asset])
}

func (s *fileStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seen state: %w", err)
	}

	tmp := s.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write seen state: %w", err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace seen state: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *fileStore) Close() error {
	return s.Persist()
}
