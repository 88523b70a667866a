package weather

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Token grammar for raw METAR/TAF text. The upstream normally serves JSON
// but the raw format survives as a fallback and in operator-supplied test
// payloads.
var (
	obsTimeRegex  = regexp.MustCompile(`^(\d{2})(\d{2})(\d{2})Z$`)
	windRegex     = regexp.MustCompile(`^(VRB|\d{3})(\d{2,3})(G(\d{2,3}))?KT$`)
	windVarRegex  = regexp.MustCompile(`^(\d{3})V(\d{3})$`)
	visRegex      = regexp.MustCompile(`^([MP]?)(\d+(?:/\d+)?)SM$`)
	fractionRegex = regexp.MustCompile(`^(\d)/(\d{1,2})SM$`)
	cloudRegex    = regexp.MustCompile(`^(SKC|CLR|FEW|SCT|BKN|OVC|VV)(\d{3})?(CB|TCU)?$`)
	tempRegex     = regexp.MustCompile(`^(M?)(\d{2})/(M?)(\d{2})$`)
	altimARegex   = regexp.MustCompile(`^A(\d{4})$`)
	altimQRegex   = regexp.MustCompile(`^Q(\d{4})$`)
	validRegex    = regexp.MustCompile(`^(\d{2})(\d{2})/(\d{2})(\d{2})$`)
	fmRegex       = regexp.MustCompile(`^FM(\d{2})(\d{2})(\d{2})$`)
	probRegex     = regexp.MustCompile(`^PROB(\d{2})$`)
	identRegex    = regexp.MustCompile(`^[A-Z][A-Z0-9]{3}$`)
	wxRegex       = regexp.MustCompile(`^[+-]?(VC)?(MI|PR|BC|DR|BL|SH|TS|FZ)*(DZ|RA|SN|SG|IC|PL|GR|GS|UP|BR|FG|FU|VA|DU|SA|HZ|PY|PO|SQ|FC|SS|DS)+$`)
)

// parseMETARText decodes a raw METAR report body
func (p *Parser) parseMETARText(raw string, icao string) (*WeatherRecord, error) {
	rec := &WeatherRecord{
		ICAO: strings.ToUpper(icao),
		Feed: FeedMETAR,
		Raw:  strings.TrimSpace(raw),
	}

	tokens := strings.Fields(rec.Raw)
	matched := 0

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok == "RMK":
			// Remarks are kept in Raw but not decoded.
			i = len(tokens)

		case tok == "METAR" || tok == "SPECI" || tok == "AUTO" || tok == "COR" || tok == "NOSIG":
			// Report-type and status markers carry no observation data.

		case i == 0 && identRegex.MatchString(tok):
			rec.ICAO = tok
			matched++

		case obsTimeRegex.MatchString(tok):
			m := obsTimeRegex.FindStringSubmatch(tok)
			rec.IssueTime = p.anchorDayTime(atoi(m[1]), atoi(m[2]), atoi(m[3]))
			matched++

		case windRegex.MatchString(tok):
			applyWindToken(tok, &rec.WindDirDeg, &rec.WindVariable, &rec.WindSpeedKt, &rec.WindGustKt)
			matched++

		case windVarRegex.MatchString(tok):
			rec.WindVariable = true
			matched++

		case visRegex.MatchString(tok):
			rec.VisibilitySM, rec.VisibilityGreater, rec.VisibilityLess = parseVisToken(tok)
			matched++

		case isWholeNumber(tok) && i+1 < len(tokens) && fractionRegex.MatchString(tokens[i+1]):
			// Mixed-number visibility spans two tokens ("1 1/2SM").
			whole := float64(atoi(tok))
			m := fractionRegex.FindStringSubmatch(tokens[i+1])
			denom := float64(atoi(m[2]))
			if denom != 0 {
				v := whole + float64(atoi(m[1]))/denom
				rec.VisibilitySM = &v
				matched++
			}
			i++

		case tempRegex.MatchString(tok):
			m := tempRegex.FindStringSubmatch(tok)
			t := signedTemp(m[1], m[2])
			d := signedTemp(m[3], m[4])
			rec.TemperatureC, rec.DewpointC = &t, &d
			matched++

		case altimARegex.MatchString(tok):
			m := altimARegex.FindStringSubmatch(tok)
			v := float64(atoi(m[1])) / 100.0
			rec.AltimeterInHg = &v
			matched++

		case altimQRegex.MatchString(tok):
			m := altimQRegex.FindStringSubmatch(tok)
			hPa := float64(atoi(m[1]))
			rec.AltimeterInHg = altimeterInHg(&hPa)
			matched++

		case cloudRegex.MatchString(tok):
			rec.Clouds = append(rec.Clouds, cloudFromToken(tok))
			matched++

		case wxRegex.MatchString(tok):
			rec.Weather = append(rec.Weather, tok)
			matched++
		}
	}

	if matched == 0 {
		return nil, &ParseError{Reason: "no recognizable METAR tokens", Raw: rec.Raw}
	}

	rec.FlightCategory = deriveFlightCategory(rec.VisibilitySM, rec.VisibilityGreater, rec.Clouds)
	return rec, nil
}

// parseTAFText decodes a raw TAF report body. Change groups (FM, BECMG,
// TEMPO, PROBnn) delimit forecast periods; a period whose validity cannot be
// decoded is dropped without failing its siblings.
func (p *Parser) parseTAFText(raw string, icao string) (*WeatherRecord, error) {
	rec := &WeatherRecord{
		ICAO: strings.ToUpper(icao),
		Feed: FeedTAF,
		Raw:  strings.TrimSpace(raw),
	}

	tokens := strings.Fields(rec.Raw)
	i := 0
	for i < len(tokens) && (tokens[i] == "TAF" || tokens[i] == "AMD" || tokens[i] == "COR") {
		i++
	}
	if i < len(tokens) && identRegex.MatchString(tokens[i]) {
		rec.ICAO = tokens[i]
		i++
	}
	if i < len(tokens) && obsTimeRegex.MatchString(tokens[i]) {
		m := obsTimeRegex.FindStringSubmatch(tokens[i])
		rec.IssueTime = p.anchorDayTime(atoi(m[1]), atoi(m[2]), atoi(m[3]))
		i++
	}
	if i < len(tokens) && validRegex.MatchString(tokens[i]) {
		from, to, ok := p.parseValidity(tokens[i])
		if ok {
			rec.ValidFrom, rec.ValidTo = &from, &to
		}
		i++
	}

	if rec.IssueTime.IsZero() && rec.ValidFrom == nil {
		return nil, &ParseError{Reason: "no recognizable TAF header", Raw: rec.Raw}
	}

	// Split the remaining tokens into period segments at change-group
	// markers. The leading segment inherits the header validity window.
	type segment struct {
		indicator string
		tokens    []string
	}
	segments := []segment{{indicator: ""}}
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if fmRegex.MatchString(tok) || tok == "BECMG" || tok == "TEMPO" || tok == "INTER" || probRegex.MatchString(tok) {
			segments = append(segments, segment{indicator: tok})
			continue
		}
		last := &segments[len(segments)-1]
		last.tokens = append(last.tokens, tok)
	}

	for _, seg := range segments {
		period := ForecastPeriod{}
		rest := seg.tokens

		switch {
		case seg.indicator == "":
			if len(rest) == 0 {
				continue
			}
			if rec.ValidFrom != nil {
				period.From = *rec.ValidFrom
			}
			if rec.ValidTo != nil {
				period.To = *rec.ValidTo
			}

		case fmRegex.MatchString(seg.indicator):
			m := fmRegex.FindStringSubmatch(seg.indicator)
			period.Indicator = "FM"
			period.From = p.anchorDayTime(atoi(m[1]), atoi(m[2]), atoi(m[3]))
			if rec.ValidTo != nil {
				period.To = *rec.ValidTo
			}

		default:
			period.Indicator = seg.indicator
			if len(rest) == 0 || !validRegex.MatchString(rest[0]) {
				// Change group without a validity window is malformed.
				continue
			}
			from, to, ok := p.parseValidity(rest[0])
			if !ok {
				continue
			}
			period.From, period.To = from, to
			rest = rest[1:]
		}

		applyPeriodConditions(rest, &period)
		rec.Periods = append(rec.Periods, period)

		// An FM group ends the previous period.
		if period.Indicator == "FM" && len(rec.Periods) > 1 {
			prev := &rec.Periods[len(rec.Periods)-2]
			if prev.Indicator == "" || prev.Indicator == "FM" {
				prev.To = period.From
			}
		}
	}

	return rec, nil
}

// applyPeriodConditions decodes the meteorological tokens of one TAF period
func applyPeriodConditions(tokens []string, period *ForecastPeriod) {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case windRegex.MatchString(tok):
			applyWindToken(tok, &period.WindDirDeg, &period.WindVariable, &period.WindSpeedKt, &period.WindGustKt)
		case visRegex.MatchString(tok):
			period.VisibilitySM, period.VisibilityGreater, period.VisibilityLess = parseVisToken(tok)
		case isWholeNumber(tok) && i+1 < len(tokens) && fractionRegex.MatchString(tokens[i+1]):
			whole := float64(atoi(tok))
			m := fractionRegex.FindStringSubmatch(tokens[i+1])
			if denom := float64(atoi(m[2])); denom != 0 {
				v := whole + float64(atoi(m[1]))/denom
				period.VisibilitySM = &v
			}
			i++
		case cloudRegex.MatchString(tok):
			period.Clouds = append(period.Clouds, cloudFromToken(tok))
		case wxRegex.MatchString(tok):
			period.Weather = append(period.Weather, tok)
		}
	}
}

func applyWindToken(tok string, dir **int, variable *bool, speed, gust **int) {
	m := windRegex.FindStringSubmatch(tok)
	if m[1] == "VRB" {
		*variable = true
	} else {
		d := atoi(m[1])
		*dir = &d
	}
	s := atoi(m[2])
	*speed = &s
	if m[4] != "" {
		g := atoi(m[4])
		*gust = &g
	}
}

// parseVisToken decodes a visibility group. The P prefix means "greater
// than", M means "less than"; both keep the numeric bound.
func parseVisToken(tok string) (*float64, bool, bool) {
	m := visRegex.FindStringSubmatch(tok)
	greater := m[1] == "P"
	less := m[1] == "M"
	var v float64
	if num, denom, found := strings.Cut(m[2], "/"); found {
		d := float64(atoi(denom))
		if d == 0 {
			return nil, false, false
		}
		v = float64(atoi(num)) / d
	} else {
		v = float64(atoi(m[2]))
	}
	return &v, greater, less
}

func cloudFromToken(tok string) CloudLayer {
	m := cloudRegex.FindStringSubmatch(tok)
	layer := CloudLayer{Cover: m[1]}
	if m[2] != "" {
		base := atoi(m[2]) * 100
		layer.BaseFt = &base
	}
	return layer
}

// anchorDayTime resolves a DDHHMM group against the parser clock. Reports
// never describe the far future, so a result well ahead of now belongs to
// the previous month.
func (p *Parser) anchorDayTime(day, hour, minute int) time.Time {
	now := p.clock.Now().UTC()
	if hour == 24 {
		hour = 0
		day++
	}
	t := time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, time.UTC)
	if t.After(now.Add(48 * time.Hour)) {
		t = t.AddDate(0, -1, 0)
	}
	return t
}

// parseValidity resolves a DDHH/DDHH TAF validity group
func (p *Parser) parseValidity(tok string) (time.Time, time.Time, bool) {
	m := validRegex.FindStringSubmatch(tok)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	from := p.anchorDayTime(atoi(m[1]), atoi(m[2]), 0)
	to := p.anchorDayTime(atoi(m[3]), atoi(m[4]), 0)
	if to.Before(from) {
		to = to.AddDate(0, 1, 0)
	}
	return from, to, true
}

func signedTemp(sign, digits string) float64 {
	v := float64(atoi(digits))
	if sign == "M" {
		return -v
	}
	return v
}

func isWholeNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
