package device

import (
	"sync"
	"time"

	"github.com/openfsae/dds-backend/internal/telemetry"
)

// Status tracks the state of a Device or Interface.
type Status int

const (
	// NotInitialized means Initialize has not completed yet.
	NotInitialized Status = iota
	// Active means data is being polled constantly.
	Active
	// Disabled means the unit is ignored by the polling loop.
	Disabled
	// StatusError means polling or initialization failed; the unit waits for
	// an explicit re-initialization pass.
	StatusError
)

func (s Status) String() string {
	switch s {
	case NotInitialized:
		return "NOT_INITIALIZED"
	case Active:
		return "ACTIVE"
	case Disabled:
		return "DISABLED"
	case StatusError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// CacheTimeout is how long a cache may go without a successful refresh
// before its values are invalidated.
const CacheTimeout = 2 * time.Second

// State is the shared status machine and value cache composed into every
// Device and Interface variant. The cache map is written only from the
// polling-loop goroutine; the RWMutex exists for readers on other
// goroutines (the pit client and the dashboard server).
type State struct {
	name string
	log  *telemetry.Logger

	mu         sync.RWMutex
	status     Status
	cache      map[string]any
	keys       []string
	lastUpdate time.Time
	expired    bool
}

// NewState creates a State in NOT_INITIALIZED with an empty cache.
func NewState(name string, log *telemetry.Logger) *State {
	return &State{
		name:       name,
		log:        log,
		status:     NotInitialized,
		cache:      make(map[string]any),
		lastUpdate: time.Now(),
	}
}

func (s *State) Name() string { return s.name }

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus changes the status, logging exactly once per change. Assigning
// the current value is a no-op and emits nothing.
func (s *State) SetStatus(v Status) {
	s.mu.Lock()
	if s.status == v {
		s.mu.Unlock()
		return
	}
	old := s.status
	s.status = v
	s.mu.Unlock()

	s.log.Infof(s.name, "%s changed from %s to %s", s.name, old, v)
}

// Put caches one value. Keys are remembered in first-seen order and are
// never deleted, so parameter enumeration stays stable.
func (s *State) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.cache[key]; !seen {
		s.keys = append(s.keys, key)
	}
	s.cache[key] = value
}

// GetData returns the cached value for key. A stale (nulled) key logs at
// DEBUG and returns nil; a key that was never cached logs at WARNING and
// returns nil. Neither case has side effects on the cache.
func (s *State) GetData(key string) any {
	s.mu.RLock()
	v, seen := s.cache[key]
	s.mu.RUnlock()

	if !seen {
		s.log.Warnf(s.name, "no cached data found for key: %s", key)
		return nil
	}
	if v == nil {
		s.log.Debugf(s.name, "cached data for key %s is stale", key)
		return nil
	}
	return v
}

// Parameters lists cached keys in first-seen order.
func (s *State) Parameters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Snapshot returns a copy of the cache for consumers that render every
// parameter at once.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

// MarkFresh resets the staleness timer. Call it after every successful
// decode, never on a mere Update tick.
func (s *State) MarkFresh() {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	s.expired = false
	s.mu.Unlock()
}

// CheckTimeout invalidates the cache when no successful refresh happened
// within CacheTimeout: every value becomes nil, keys are retained, and one
// WARNING is logged per staleness episode.
func (s *State) CheckTimeout() {
	s.mu.Lock()
	if len(s.keys) == 0 || s.expired {
		s.mu.Unlock()
		return
	}
	if time.Since(s.lastUpdate) <= CacheTimeout {
		s.mu.Unlock()
		return
	}
	for k := range s.cache {
		s.cache[k] = nil
	}
	s.expired = true
	s.mu.Unlock()

	s.log.Warnf(s.name, "cache cleared due to data timeout")
}
