package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skywatch/avweather/internal/airports"
	"github.com/skywatch/avweather/internal/observability"
	"github.com/skywatch/avweather/pkg/logger"
)

// MonitoredStation is one configured airport and its enabled feeds
type MonitoredStation struct {
	ICAO  string
	Feeds []FeedType
}

// Fetcher retrieves one raw payload per call. Satisfied by *Client.
type Fetcher interface {
	Fetch(ctx context.Context, icao string, feed FeedType) ([]byte, error)
}

// Broadcaster pushes committed records to connected observers
type Broadcaster interface {
	BroadcastFeedUpdate(data any)
}

// Service coordinates operator-triggered updates across the monitored set.
// There is no scheduler: every fetch traces back to an explicit update call.
type Service struct {
	stations    []MonitoredStation
	monitored   map[string][]FeedType
	registry    *airports.Registry
	fetcher     Fetcher
	parser      *Parser
	store       *Store
	metrics     *observability.Metrics
	broadcaster Broadcaster
	logger      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// At most one fetch may be in flight per key. Duplicates are reported
	// skipped, never queued.
	inflightMu sync.Mutex
	inflight   map[FeedKey]struct{}
}

// NewService validates the monitored set against the registry and builds the
// manager. An unknown identifier fails the whole configuration before any
// fetch is ever attempted.
func NewService(
	stations []MonitoredStation,
	registry *airports.Registry,
	fetcher Fetcher,
	parser *Parser,
	store *Store,
	metrics *observability.Metrics,
	broadcaster Broadcaster,
	log *logger.Logger,
) (*Service, error) {
	monitored := make(map[string][]FeedType, len(stations))
	normalized := make([]MonitoredStation, 0, len(stations))
	feedCount := 0

	for _, st := range stations {
		icao := strings.ToUpper(strings.TrimSpace(st.ICAO))
		if _, ok := registry.Lookup(icao); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAirport, st.ICAO)
		}
		if _, dup := monitored[icao]; dup {
			return nil, fmt.Errorf("airport %q configured more than once", st.ICAO)
		}
		feeds := st.Feeds
		if len(feeds) == 0 {
			feeds = []FeedType{FeedMETAR, FeedTAF}
		}
		monitored[icao] = feeds
		normalized = append(normalized, MonitoredStation{ICAO: icao, Feeds: feeds})
		feedCount += len(feeds)
	}

	metrics.TrackedFeeds.Set(float64(feedCount))

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		stations:    normalized,
		monitored:   monitored,
		registry:    registry,
		fetcher:     fetcher,
		parser:      parser,
		store:       store,
		metrics:     metrics,
		broadcaster: broadcaster,
		logger:      log.Named("weather-service"),
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[FeedKey]struct{}),
	}, nil
}

// Stop cancels in-flight fetches and waits for them to unwind. Cancelled
// attempts never commit.
func (s *Service) Stop() {
	s.logger.Info("Stopping weather service")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Weather service stopped")
}

// Store exposes the feed store for read handlers
func (s *Service) Store() *Store {
	return s.store
}

// Stations returns the monitored set
func (s *Service) Stations() []MonitoredStation {
	return s.stations
}

// Update runs one fetch attempt per target in scope and returns a per-target
// outcome summary. Targets run concurrently; a failure on one never aborts
// its siblings, and atomicity holds per target only.
func (s *Service) Update(ctx context.Context, scope UpdateScope) ([]TargetOutcome, error) {
	s.metrics.UpdateRequests.Inc()

	targets, err := s.resolveTargets(scope)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Update triggered",
		logger.String("icao", scope.ICAO),
		logger.String("feed", string(scope.Feed)),
		logger.Int("targets", len(targets)))

	// Service shutdown cancels the whole update.
	updateCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	outcomes := make([]TargetOutcome, len(targets))
	var wg sync.WaitGroup
	for i, key := range targets {
		if !s.acquire(key) {
			outcomes[i] = TargetOutcome{Key: key, Outcome: FetchOutcome{
				Kind:   OutcomeSkipped,
				Reason: "update already in flight",
			}}
			s.countOutcome(key.Feed, OutcomeSkipped)
			continue
		}

		wg.Add(1)
		s.wg.Add(1)
		go func(i int, key FeedKey) {
			defer wg.Done()
			defer s.wg.Done()
			defer s.release(key)
			outcomes[i] = TargetOutcome{Key: key, Outcome: s.updateTarget(updateCtx, key)}
		}(i, key)
	}
	wg.Wait()

	return outcomes, nil
}

// resolveTargets intersects the requested scope with the monitored set
func (s *Service) resolveTargets(scope UpdateScope) ([]FeedKey, error) {
	var targets []FeedKey

	if scope.ICAO != "" {
		icao := strings.ToUpper(strings.TrimSpace(scope.ICAO))
		feeds, ok := s.monitored[icao]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotMonitored, icao)
		}
		for _, feed := range feeds {
			if scope.Feed == "" || scope.Feed == feed {
				targets = append(targets, FeedKey{ICAO: icao, Feed: feed})
			}
		}
		return targets, nil
	}

	for _, st := range s.stations {
		for _, feed := range st.Feeds {
			if scope.Feed == "" || scope.Feed == feed {
				targets = append(targets, FeedKey{ICAO: st.ICAO, Feed: feed})
			}
		}
	}
	return targets, nil
}

// updateTarget runs the fetch-parse-commit pipeline for one key
func (s *Service) updateTarget(ctx context.Context, key FeedKey) FetchOutcome {
	start := time.Now()
	defer func() {
		s.metrics.FetchDuration.WithLabelValues(strings.ToLower(string(key.Feed))).Observe(time.Since(start).Seconds())
	}()

	payload, err := s.fetcher.Fetch(ctx, key.ICAO, key.Feed)
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			s.logger.Info("No report available",
				logger.String("key", key.String()))
			return s.record(key, FetchOutcome{Kind: OutcomeNotFound, Reason: "upstream has no current report"})
		}
		s.logger.Warn("Fetch failed, keeping prior record",
			logger.String("key", key.String()),
			logger.Error(err))
		return s.record(key, FetchOutcome{Kind: OutcomeTransientFailure, Reason: err.Error()})
	}

	rec, err := s.parser.Parse(payload, key.Feed, key.ICAO)
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			s.logger.Info("No report in payload",
				logger.String("key", key.String()))
			return s.record(key, FetchOutcome{Kind: OutcomeNotFound, Reason: "payload carries no report"})
		}
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			s.logger.Error("Unparseable payload, keeping prior record",
				logger.String("key", key.String()),
				logger.String("reason", parseErr.Reason),
				logger.String("raw", parseErr.Raw))
			return s.record(key, FetchOutcome{Kind: OutcomeParseFailure, Reason: parseErr.Reason, Raw: parseErr.Raw})
		}
		return s.record(key, FetchOutcome{Kind: OutcomeParseFailure, Reason: err.Error()})
	}

	s.enrich(rec)
	s.store.Commit(key, rec)
	s.countOutcome(key.Feed, OutcomeCommitted)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastFeedUpdate(map[string]any{
			"key":    key,
			"record": rec,
		})
	}

	s.logger.Info("Record committed",
		logger.String("key", key.String()),
		logger.Time("issue_time", rec.IssueTime))
	return FetchOutcome{Kind: OutcomeCommitted}
}

// record stamps a non-committing attempt and counts it
func (s *Service) record(key FeedKey, outcome FetchOutcome) FetchOutcome {
	s.store.MarkAttempt(key, outcome)
	s.countOutcome(key.Feed, outcome.Kind)
	return outcome
}

func (s *Service) countOutcome(feed FeedType, kind OutcomeKind) {
	s.metrics.FetchOutcomes.WithLabelValues(strings.ToLower(string(feed)), string(kind)).Inc()
}

// enrich copies the station position from the registry onto the record
func (s *Service) enrich(rec *WeatherRecord) {
	airport, ok := s.registry.Lookup(rec.ICAO)
	if !ok {
		s.logger.Warn("Committed record for airport missing from dataset",
			logger.String("icao", rec.ICAO))
		return
	}
	lat, lon := airport.Latitude, airport.Longitude
	rec.Latitude = &lat
	rec.Longitude = &lon
	if airport.ElevationFt != nil {
		elev := *airport.ElevationFt
		rec.ElevationFt = &elev
	}
}

func (s *Service) acquire(key FeedKey) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key FeedKey) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}
