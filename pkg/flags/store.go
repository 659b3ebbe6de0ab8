// Package flags loads feature flags from a YAML file and keeps them fresh
// while the process runs. Readers always see a complete snapshot; a reload
// swaps the whole set at once.
package flags

import (
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parlancehq/parlance/pkg/errors"
	"github.com/parlancehq/parlance/pkg/logging"
)

// fileFormat is the on-disk shape: {flags: {name: bool}}.
type fileFormat struct {
	Flags map[string]bool `yaml:"flags"`
}

// Store holds the current flag snapshot. A missing file and a missing flag
// both read as disabled.
type Store struct {
	path   string
	logger *logging.Logger

	mu       sync.RWMutex
	snapshot map[string]bool
	loadedAt time.Time

	// last observed file identity, used by the polling fallback
	statMu   sync.Mutex
	lastMod  time.Time
	lastSize int64
}

// NewStore builds a store for the flag file at path and performs the first
// load. A nonexistent file is not an error; it reads as "no flags".
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	s := &Store{
		path:     path,
		logger:   logger,
		snapshot: map[string]bool{},
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the file and swaps in a new snapshot. Unparseable content is an
// error and leaves the previous snapshot in place.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.swap(map[string]bool{})
			s.recordStat(time.Time{}, 0)
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "reading flag file")
	}

	var parsed fileFormat
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "parsing flag file")
	}
	if parsed.Flags == nil {
		parsed.Flags = map[string]bool{}
	}

	s.swap(parsed.Flags)
	if info, err := os.Stat(s.path); err == nil {
		s.recordStat(info.ModTime(), info.Size())
	}

	if s.logger != nil {
		s.logger.Info(logging.CategoryFlags, "flags_loaded", "flag snapshot reloaded", map[string]any{
			"path":  s.path,
			"count": len(parsed.Flags),
		})
	}
	return nil
}

// Enabled reports whether the named flag is on. Unknown flags are off.
func (s *Store) Enabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot[name]
}

// Names returns the known flag names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.snapshot))
	for name := range s.snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadedAt returns when the current snapshot was taken.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Predicate adapts a flag to a capability enable check. The store is read on
// every call, so a reload changes the answer without re-registration.
func (s *Store) Predicate(name string) func() (bool, error) {
	return func() (bool, error) {
		return s.Enabled(name), nil
	}
}

// PredicateDefault is Predicate for flags that should default to enabled
// when absent from the file: only an explicit false turns them off.
func (s *Store) PredicateDefault(name string) func() (bool, error) {
	return func() (bool, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		value, ok := s.snapshot[name]
		if !ok {
			return true, nil
		}
		return value, nil
	}
}

func (s *Store) swap(snapshot map[string]bool) {
	s.mu.Lock()
	s.snapshot = snapshot
	s.loadedAt = time.Now()
	s.mu.Unlock()
}

func (s *Store) recordStat(mod time.Time, size int64) {
	s.statMu.Lock()
	s.lastMod = mod
	s.lastSize = size
	s.statMu.Unlock()
}

// changedOnDisk compares the file's current identity against the last load.
func (s *Store) changedOnDisk() bool {
	info, err := os.Stat(s.path)

	s.statMu.Lock()
	defer s.statMu.Unlock()

	if err != nil {
		// File vanished: changed only if we previously had one.
		return !s.lastMod.IsZero() || s.lastSize != 0
	}
	return !info.ModTime().Equal(s.lastMod) || info.Size() != s.lastSize
}
