package weather

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FeedType identifies one of the two report feeds served per airport
type FeedType string

const (
	FeedMETAR FeedType = "METAR"
	FeedTAF   FeedType = "TAF"
)

// ParseFeedType converts operator input into a FeedType (case-insensitive)
func ParseFeedType(s string) (FeedType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "METAR":
		return FeedMETAR, nil
	case "TAF":
		return FeedTAF, nil
	default:
		return "", fmt.Errorf("invalid feed type: %q (must be METAR or TAF)", s)
	}
}

// FeedKey identifies one trackable weather feed: an (airport, feed type) pair
type FeedKey struct {
	ICAO string   `json:"icao"`
	Feed FeedType `json:"feed"`
}

func (k FeedKey) String() string {
	return k.ICAO + "/" + string(k.Feed)
}

// FlightCategory is the coarse VFR/IFR classification derived from
// visibility and ceiling
type FlightCategory string

const (
	CategoryVFR     FlightCategory = "VFR"
	CategoryMVFR    FlightCategory = "MVFR"
	CategoryIFR     FlightCategory = "IFR"
	CategoryLIFR    FlightCategory = "LIFR"
	CategoryUnknown FlightCategory = ""
)

// CloudLayer is one reported cloud layer. BaseFt is nil for layers that
// carry no height (CLR, SKC).
type CloudLayer struct {
	Cover  string `json:"cover"`
	BaseFt *int   `json:"base_ft,omitempty"`
}

// ForecastPeriod is a single period within a TAF. Meteorological fields are
// optional: nil means not reported, never zero.
type ForecastPeriod struct {
	From      time.Time `json:"time_from"`
	To        time.Time `json:"time_to"`
	Indicator string    `json:"indicator,omitempty"` // FM, BECMG, TEMPO, PROB30, ...

	WindDirDeg        *int     `json:"wind_direction_deg,omitempty"`
	WindVariable      bool     `json:"wind_variable,omitempty"`
	WindSpeedKt       *int     `json:"wind_speed_kts,omitempty"`
	WindGustKt        *int     `json:"wind_gust_kts,omitempty"`
	VisibilitySM      *float64 `json:"visibility_mi,omitempty"`
	VisibilityGreater bool     `json:"visibility_greater_than,omitempty"`
	VisibilityLess    bool     `json:"visibility_less_than,omitempty"`

	Clouds  []CloudLayer `json:"clouds,omitempty"`
	Weather []string     `json:"weather,omitempty"`
}

// WeatherRecord is the canonical parsed report for one feed key. A record is
// immutable once built: each successful fetch produces a new record that
// replaces the prior one for its key in a single step.
//
// Field names carry explicit units. All unit conversion happens in the
// parser, never downstream. Optional numerics are pointers so that "not
// reported" is distinguishable from a legitimate zero.
type WeatherRecord struct {
	ICAO      string    `json:"icao"`
	Feed      FeedType  `json:"feed"`
	Raw       string    `json:"raw"`
	IssueTime time.Time `json:"issue_time"`

	// Station position, copied from the airport registry at commit time.
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	ElevationFt *int     `json:"elevation_ft,omitempty"`

	// METAR observation fields.
	FlightCategory    FlightCategory `json:"flight_category,omitempty"`
	TemperatureC      *float64       `json:"temperature_c,omitempty"`
	DewpointC         *float64       `json:"dewpoint_c,omitempty"`
	WindDirDeg        *int           `json:"wind_direction_deg,omitempty"`
	WindVariable      bool           `json:"wind_variable,omitempty"`
	WindSpeedKt       *int           `json:"wind_speed_kts,omitempty"`
	WindGustKt        *int           `json:"wind_gust_kts,omitempty"`
	VisibilitySM      *float64       `json:"visibility_mi,omitempty"`
	VisibilityGreater bool           `json:"visibility_greater_than,omitempty"`
	VisibilityLess    bool           `json:"visibility_less_than,omitempty"`
	AltimeterInHg     *float64       `json:"altimeter_in_hg,omitempty"`
	Clouds            []CloudLayer   `json:"clouds,omitempty"`
	Weather           []string       `json:"weather,omitempty"`

	// TAF forecast fields.
	ValidFrom *time.Time       `json:"valid_time_from,omitempty"`
	ValidTo   *time.Time       `json:"valid_time_to,omitempty"`
	Periods   []ForecastPeriod `json:"forecast_periods,omitempty"`
}

// OutcomeKind classifies the result of one fetch attempt
type OutcomeKind string

const (
	OutcomeCommitted        OutcomeKind = "committed"
	OutcomeNotFound         OutcomeKind = "not_found"
	OutcomeTransientFailure OutcomeKind = "transient_failure"
	OutcomeParseFailure     OutcomeKind = "parse_failure"
	OutcomeSkipped          OutcomeKind = "skipped"
)

// FetchOutcome is the per-target result of one attempt. On a parse failure
// the offending payload is retained for diagnostics.
type FetchOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
	Raw    string      `json:"raw,omitempty"`
}

// UpdateScope narrows an update request. Empty ICAO means every monitored
// airport; empty Feed means every enabled feed type.
type UpdateScope struct {
	ICAO string
	Feed FeedType
}

// TargetOutcome pairs a resolved target with its attempt result
type TargetOutcome struct {
	Key     FeedKey      `json:"key"`
	Outcome FetchOutcome `json:"outcome"`
}

// ErrNoReport indicates the upstream source has no current report for a
// valid identifier. Expected for quiet stations, not an operator-facing
// error.
var ErrNoReport = errors.New("no report available")

// ErrNotMonitored indicates an update request named an airport outside the
// configured monitored set. The whole request is rejected before any fetch.
var ErrNotMonitored = errors.New("airport is not monitored")

// ErrUnknownAirport indicates a configured identifier is absent from the
// airport reference dataset. Surfaces at setup, before any fetch.
var ErrUnknownAirport = errors.New("unknown airport identifier")

// ParseError indicates a payload was received but could not be decoded into
// a WeatherRecord. Raw preserves the offending text for diagnosis.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "parse failure: " + e.Reason
}
