package weather

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/avweather/pkg/logger"
)

func TestStoreCommitAndGet(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC))
	store := NewStore(clock, logger.NewNop())

	key := FeedKey{ICAO: "CYYZ", Feed: FeedMETAR}
	_, ok := store.Get(key)
	assert.False(t, ok)

	rec := &WeatherRecord{ICAO: "CYYZ", Feed: FeedMETAR, Raw: "CYYZ 151651Z ..."}
	store.Commit(key, rec)

	state, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, rec, state.Record)
	assert.Equal(t, clock.Now().UTC(), state.LastAttempt)
	require.NotNil(t, state.LastOutcome)
	assert.Equal(t, OutcomeCommitted, state.LastOutcome.Kind)
}

func TestStoreFailedAttemptKeepsPriorRecord(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC))
	store := NewStore(clock, logger.NewNop())

	key := FeedKey{ICAO: "CYYZ", Feed: FeedMETAR}
	rec := &WeatherRecord{ICAO: "CYYZ", Feed: FeedMETAR, Raw: "CYYZ 151651Z ..."}
	store.Commit(key, rec)

	clock.Advance(10 * time.Minute)
	store.MarkAttempt(key, FetchOutcome{Kind: OutcomeTransientFailure, Reason: "timeout"})

	state, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, rec, state.Record, "prior record must survive a failed refresh")
	assert.Equal(t, OutcomeTransientFailure, state.LastOutcome.Kind)
	assert.Equal(t, clock.Now().UTC(), state.LastAttempt)
}

func TestStoreAttemptBeforeAnyCommit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC))
	store := NewStore(clock, logger.NewNop())

	key := FeedKey{ICAO: "KJFK", Feed: FeedTAF}
	store.MarkAttempt(key, FetchOutcome{Kind: OutcomeNotFound})

	state, ok := store.Get(key)
	require.True(t, ok)
	assert.Nil(t, state.Record)
	assert.Equal(t, OutcomeNotFound, state.LastOutcome.Kind)
}

func TestStoreAllIsSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC))
	store := NewStore(clock, logger.NewNop())

	keyA := FeedKey{ICAO: "CYYZ", Feed: FeedMETAR}
	keyB := FeedKey{ICAO: "KJFK", Feed: FeedTAF}
	store.Commit(keyA, &WeatherRecord{ICAO: "CYYZ", Feed: FeedMETAR})
	store.Commit(keyB, &WeatherRecord{ICAO: "KJFK", Feed: FeedTAF})

	snapshot := store.All()
	require.Len(t, snapshot, 2)

	// Mutating the snapshot must not touch the store.
	delete(snapshot, keyA)
	_, ok := store.Get(keyA)
	assert.True(t, ok)
}

func TestStoreForAirport(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC))
	store := NewStore(clock, logger.NewNop())

	store.Commit(FeedKey{ICAO: "CYYZ", Feed: FeedMETAR}, &WeatherRecord{ICAO: "CYYZ", Feed: FeedMETAR})
	store.Commit(FeedKey{ICAO: "CYYZ", Feed: FeedTAF}, &WeatherRecord{ICAO: "CYYZ", Feed: FeedTAF})
	store.Commit(FeedKey{ICAO: "KJFK", Feed: FeedMETAR}, &WeatherRecord{ICAO: "KJFK", Feed: FeedMETAR})

	states := store.ForAirport("CYYZ")
	require.Len(t, states, 2)
	assert.Contains(t, states, FeedMETAR)
	assert.Contains(t, states, FeedTAF)
}
