package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Parser turns upstream payloads into WeatherRecords. It accepts both the
// aviationweather.gov JSON array shape and raw METAR/TAF text. The clock is
// only used to anchor the two-digit day/hour groups raw text carries.
type Parser struct {
	clock clockwork.Clock
}

// NewParser creates a parser anchored on the given clock
func NewParser(clock clockwork.Clock) *Parser {
	return &Parser{clock: clock}
}

// Parse decodes one upstream payload for the given target. Returns
// ErrNoReport when the payload is a well-formed "nothing for this station"
// response, and *ParseError when the payload cannot be decoded at all. A
// malformed individual TAF period is dropped; the rest of the forecast
// survives.
func (p *Parser) Parse(payload []byte, feed FeedType, icao string) (*WeatherRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, ErrNoReport
	}

	if trimmed[0] == '[' || trimmed[0] == '{' {
		return p.parseJSON(trimmed, feed, icao)
	}

	switch feed {
	case FeedMETAR:
		return p.parseMETARText(string(trimmed), icao)
	case FeedTAF:
		return p.parseTAFText(string(trimmed), icao)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown feed type %q", feed), Raw: string(trimmed)}
	}
}

// metarDTO mirrors the aviationweather.gov METAR JSON element. The upstream
// schema is flexible: several numeric fields arrive as strings under some
// conditions, so the loose types below absorb that.
type metarDTO struct {
	ICAOID     string     `json:"icaoId"`
	RawOb      string     `json:"rawOb"`
	ReportTime flexTime   `json:"reportTime"`
	Temp       *float64   `json:"temp"`
	Dewp       *float64   `json:"dewp"`
	Wdir       flexWind   `json:"wdir"`
	Wspd       *int       `json:"wspd"`
	Wgst       *int       `json:"wgst"`
	Visib      flexVis    `json:"visib"`
	Altim      *float64   `json:"altim"`
	FltCat     string     `json:"fltCat"`
	WxString   string     `json:"wxString"`
	Clouds     []cloudDTO `json:"clouds"`
}

type cloudDTO struct {
	Cover string `json:"cover"`
	Base  *int   `json:"base"`
}

type tafDTO struct {
	ICAOID        string    `json:"icaoId"`
	RawTAF        string    `json:"rawTAF"`
	IssueTime     flexTime  `json:"issueTime"`
	ValidTimeFrom flexTime  `json:"validTimeFrom"`
	ValidTimeTo   flexTime  `json:"validTimeTo"`
	Fcsts         []fcstDTO `json:"fcsts"`
}

type fcstDTO struct {
	TimeFrom    flexTime   `json:"timeFrom"`
	TimeTo      flexTime   `json:"timeTo"`
	FcstChange  string     `json:"fcstChange"`
	Probability *int       `json:"probability"`
	Wdir        flexWind   `json:"wdir"`
	Wspd        *int       `json:"wspd"`
	Wgst        *int       `json:"wgst"`
	Visib       flexVis    `json:"visib"`
	WxString    string     `json:"wxString"`
	Clouds      []cloudDTO `json:"clouds"`
}

func (p *Parser) parseJSON(payload []byte, feed FeedType, icao string) (*WeatherRecord, error) {
	// A single object is treated as a one-element array.
	if payload[0] == '{' {
		payload = append(append([]byte{'['}, payload...), ']')
	}

	switch feed {
	case FeedMETAR:
		var obs []metarDTO
		if err := json.Unmarshal(payload, &obs); err != nil {
			return nil, &ParseError{Reason: "decoding METAR JSON: " + err.Error(), Raw: string(payload)}
		}
		if len(obs) == 0 {
			return nil, ErrNoReport
		}
		return p.recordFromMETAR(&obs[0], icao), nil

	case FeedTAF:
		var fcs []tafDTO
		if err := json.Unmarshal(payload, &fcs); err != nil {
			return nil, &ParseError{Reason: "decoding TAF JSON: " + err.Error(), Raw: string(payload)}
		}
		if len(fcs) == 0 {
			return nil, ErrNoReport
		}
		return p.recordFromTAF(&fcs[0], icao), nil
	}
	return nil, &ParseError{Reason: fmt.Sprintf("unknown feed type %q", feed), Raw: string(payload)}
}

func (p *Parser) recordFromMETAR(dto *metarDTO, icao string) *WeatherRecord {
	rec := &WeatherRecord{
		ICAO:              strings.ToUpper(firstNonEmpty(dto.ICAOID, icao)),
		Feed:              FeedMETAR,
		Raw:               dto.RawOb,
		IssueTime:         dto.ReportTime.Time,
		TemperatureC:      dto.Temp,
		DewpointC:         dto.Dewp,
		WindDirDeg:        dto.Wdir.Degrees,
		WindVariable:      dto.Wdir.Variable,
		WindSpeedKt:       dto.Wspd,
		WindGustKt:        dto.Wgst,
		VisibilitySM:      dto.Visib.Miles,
		VisibilityGreater: dto.Visib.Greater,
		AltimeterInHg:     altimeterInHg(dto.Altim),
		Weather:           splitWeather(dto.WxString),
	}
	for _, c := range dto.Clouds {
		rec.Clouds = append(rec.Clouds, CloudLayer{Cover: c.Cover, BaseFt: c.Base})
	}
	rec.FlightCategory = FlightCategory(dto.FltCat)
	if rec.FlightCategory == CategoryUnknown {
		rec.FlightCategory = deriveFlightCategory(rec.VisibilitySM, rec.VisibilityGreater, rec.Clouds)
	}
	return rec
}

func (p *Parser) recordFromTAF(dto *tafDTO, icao string) *WeatherRecord {
	rec := &WeatherRecord{
		ICAO:      strings.ToUpper(firstNonEmpty(dto.ICAOID, icao)),
		Feed:      FeedTAF,
		Raw:       dto.RawTAF,
		IssueTime: dto.IssueTime.Time,
	}
	if !dto.ValidTimeFrom.Time.IsZero() {
		t := dto.ValidTimeFrom.Time
		rec.ValidFrom = &t
	}
	if !dto.ValidTimeTo.Time.IsZero() {
		t := dto.ValidTimeTo.Time
		rec.ValidTo = &t
	}
	for _, f := range dto.Fcsts {
		// A period without a usable validity window is dropped; the
		// remaining periods still make a useful forecast.
		if f.TimeFrom.Time.IsZero() && f.TimeTo.Time.IsZero() {
			continue
		}
		period := ForecastPeriod{
			From:              f.TimeFrom.Time,
			To:                f.TimeTo.Time,
			Indicator:         f.FcstChange,
			WindDirDeg:        f.Wdir.Degrees,
			WindVariable:      f.Wdir.Variable,
			WindSpeedKt:       f.Wspd,
			WindGustKt:        f.Wgst,
			VisibilitySM:      f.Visib.Miles,
			VisibilityGreater: f.Visib.Greater,
			Weather:           splitWeather(f.WxString),
		}
		if f.Probability != nil && period.Indicator == "" {
			period.Indicator = fmt.Sprintf("PROB%d", *f.Probability)
		}
		for _, c := range f.Clouds {
			period.Clouds = append(period.Clouds, CloudLayer{Cover: c.Cover, BaseFt: c.Base})
		}
		rec.Periods = append(rec.Periods, period)
	}
	return rec
}

// flexTime accepts epoch seconds, "2006-01-02 15:04:05", and RFC 3339
type flexTime struct {
	Time time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Time = time.Unix(epoch, 0).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	// Unparseable timestamps degrade to the zero time rather than failing
	// the whole report.
	return nil
}

// flexWind accepts a numeric direction, the string form of one, or "VRB"
type flexWind struct {
	Degrees  *int
	Variable bool
}

func (f *flexWind) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	if strings.EqualFold(s, "VRB") {
		f.Variable = true
		return nil
	}
	if deg, err := strconv.Atoi(s); err == nil {
		f.Degrees = &deg
	}
	return nil
}

// flexVis accepts a numeric visibility or strings like "10+" / "6+"
type flexVis struct {
	Miles   *float64
	Greater bool
}

func (f *flexVis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasSuffix(s, "+") {
		f.Greater = true
		s = strings.TrimSuffix(s, "+")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.Miles = &v
	} else {
		f.Greater = false
	}
	return nil
}

// altimeterInHg normalizes the upstream altimeter value. The JSON API
// reports hectopascals while raw text carries inches of mercury; anything
// above 400 cannot be a plausible inHg reading.
func altimeterInHg(v *float64) *float64 {
	if v == nil {
		return nil
	}
	inHg := *v
	if inHg > 400 {
		inHg = inHg * 0.02953
	}
	inHg = float64(int(inHg*100+0.5)) / 100
	return &inHg
}

func splitWeather(wx string) []string {
	if strings.TrimSpace(wx) == "" {
		return nil
	}
	return strings.Fields(wx)
}

// deriveFlightCategory classifies visibility and ceiling when the upstream
// did not supply a category. Ceiling is the lowest broken or overcast layer.
func deriveFlightCategory(visSM *float64, visGreater bool, clouds []CloudLayer) FlightCategory {
	ceilingFt := -1
	for _, c := range clouds {
		if (c.Cover == "BKN" || c.Cover == "OVC" || c.Cover == "VV") && c.BaseFt != nil {
			if ceilingFt < 0 || *c.BaseFt < ceilingFt {
				ceilingFt = *c.BaseFt
			}
		}
	}
	if visSM == nil && ceilingFt < 0 {
		return CategoryUnknown
	}

	vis := 99.0
	if visSM != nil && !visGreater {
		vis = *visSM
	} else if visSM != nil {
		vis = *visSM + 1
	}
	ceiling := 99999
	if ceilingFt >= 0 {
		ceiling = ceilingFt
	}

	switch {
	case ceiling < 500 || vis < 1:
		return CategoryLIFR
	case ceiling < 1000 || vis < 3:
		return CategoryIFR
	case ceiling <= 3000 || vis <= 5:
		return CategoryMVFR
	default:
		return CategoryVFR
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
