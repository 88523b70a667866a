package weather

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/skywatch/avweather/pkg/logger"
)

// FeedState is one store entry: the last committed record (nil until a
// fetch has succeeded) plus bookkeeping about the most recent attempt.
type FeedState struct {
	Record      *WeatherRecord `json:"record,omitempty"`
	LastAttempt time.Time      `json:"last_attempt,omitempty"`
	LastOutcome *FetchOutcome  `json:"last_outcome,omitempty"`
}

// Store holds the last-known state per feed key. Purely in-memory: nothing
// survives a restart, and historical report versions are never kept. The
// manager is the single writer; readers get snapshot copies.
type Store struct {
	mu      sync.RWMutex
	entries map[FeedKey]FeedState
	clock   clockwork.Clock
	logger  *logger.Logger
}

// NewStore creates an empty feed store
func NewStore(clock clockwork.Clock, log *logger.Logger) *Store {
	return &Store{
		entries: make(map[FeedKey]FeedState),
		clock:   clock,
		logger:  log.Named("feed-store"),
	}
}

// Commit replaces the record for a key in one step and stamps the attempt.
// Readers never observe a partially updated record.
func (s *Store) Commit(key FeedKey, rec *WeatherRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	entry.Record = rec
	entry.LastAttempt = s.clock.Now().UTC()
	entry.LastOutcome = &FetchOutcome{Kind: OutcomeCommitted}
	s.entries[key] = entry

	s.logger.Debug("Committed record",
		logger.String("key", key.String()),
		logger.Time("issue_time", rec.IssueTime))
}

// MarkAttempt records a non-committing attempt. The prior record, if any,
// stays untouched so state never regresses after a failed refresh.
func (s *Store) MarkAttempt(key FeedKey, outcome FetchOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	entry.LastAttempt = s.clock.Now().UTC()
	entry.LastOutcome = &outcome
	s.entries[key] = entry
}

// Get returns a snapshot of one key's state
func (s *Store) Get(key FeedKey) (FeedState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// All returns a snapshot of every tracked key
func (s *Store) All() map[FeedKey]FeedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[FeedKey]FeedState, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// ForAirport returns snapshots of both feeds for one airport
func (s *Store) ForAirport(icao string) map[FeedType]FeedState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[FeedType]FeedState, 2)
	for _, feed := range []FeedType{FeedMETAR, FeedTAF} {
		if entry, ok := s.entries[FeedKey{ICAO: icao, Feed: feed}]; ok {
			out[feed] = entry
		}
	}
	return out
}
