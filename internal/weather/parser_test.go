package weather

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	return NewParser(clockwork.NewFakeClockAt(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC)))
}

func TestParseMETARText(t *testing.T) {
	p := testParser()

	rec, err := p.Parse([]byte("KJFK 151651Z 27012KT 10SM FEW250 22/15 A3005 RMK AO2 SLP174"), FeedMETAR, "KJFK")
	require.NoError(t, err)

	assert.Equal(t, "KJFK", rec.ICAO)
	assert.Equal(t, FeedMETAR, rec.Feed)
	assert.Equal(t, time.Date(2025, 8, 15, 16, 51, 0, 0, time.UTC), rec.IssueTime)

	require.NotNil(t, rec.WindDirDeg)
	assert.Equal(t, 270, *rec.WindDirDeg)
	require.NotNil(t, rec.WindSpeedKt)
	assert.Equal(t, 12, *rec.WindSpeedKt)
	assert.Nil(t, rec.WindGustKt)
	assert.False(t, rec.WindVariable)

	require.NotNil(t, rec.VisibilitySM)
	assert.Equal(t, 10.0, *rec.VisibilitySM)

	require.NotNil(t, rec.TemperatureC)
	assert.Equal(t, 22.0, *rec.TemperatureC)
	require.NotNil(t, rec.DewpointC)
	assert.Equal(t, 15.0, *rec.DewpointC)

	require.NotNil(t, rec.AltimeterInHg)
	assert.Equal(t, 30.05, *rec.AltimeterInHg)

	require.Len(t, rec.Clouds, 1)
	assert.Equal(t, "FEW", rec.Clouds[0].Cover)
	require.NotNil(t, rec.Clouds[0].BaseFt)
	assert.Equal(t, 25000, *rec.Clouds[0].BaseFt)

	assert.Equal(t, CategoryVFR, rec.FlightCategory)
}

func TestParseMETARTextVariableWindAndGusts(t *testing.T) {
	p := testParser()

	rec, err := p.Parse([]byte("CYYZ 151700Z VRB03G18KT 1 1/2SM -RA BR BKN008 OVC015 18/17 A2992"), FeedMETAR, "CYYZ")
	require.NoError(t, err)

	assert.True(t, rec.WindVariable)
	assert.Nil(t, rec.WindDirDeg)
	require.NotNil(t, rec.WindSpeedKt)
	assert.Equal(t, 3, *rec.WindSpeedKt)
	require.NotNil(t, rec.WindGustKt)
	assert.Equal(t, 18, *rec.WindGustKt)

	require.NotNil(t, rec.VisibilitySM)
	assert.Equal(t, 1.5, *rec.VisibilitySM)

	assert.Equal(t, []string{"-RA", "BR"}, rec.Weather)

	// Ceiling 800 ft with 1.5 SM puts this in IFR.
	assert.Equal(t, CategoryIFR, rec.FlightCategory)
}

func TestParseMETARTextLessThanVisibility(t *testing.T) {
	p := testParser()

	rec, err := p.Parse([]byte("CYYZ 151700Z 00000KT M1/4SM FG VV002 18/17 A2992"), FeedMETAR, "CYYZ")
	require.NoError(t, err)

	require.NotNil(t, rec.VisibilitySM)
	assert.Equal(t, 0.25, *rec.VisibilitySM)
	assert.True(t, rec.VisibilityLess)
	assert.False(t, rec.VisibilityGreater)
	assert.Equal(t, CategoryLIFR, rec.FlightCategory)
}

func TestParseMETARTextNegativeTemps(t *testing.T) {
	p := testParser()

	rec, err := p.Parse([]byte("CYYZ 151700Z 36010KT 15SM SKC M05/M12 A3030"), FeedMETAR, "CYYZ")
	require.NoError(t, err)

	require.NotNil(t, rec.TemperatureC)
	assert.Equal(t, -5.0, *rec.TemperatureC)
	require.NotNil(t, rec.DewpointC)
	assert.Equal(t, -12.0, *rec.DewpointC)
}

func TestParseMETARJSON(t *testing.T) {
	p := testParser()

	payload := `[{
		"icaoId": "KJFK",
		"rawOb": "KJFK 151651Z 27012KT 10SM FEW250 22/15 A3005",
		"reportTime": "2025-08-15 16:51:00",
		"temp": 22.0,
		"dewp": 15.0,
		"wdir": 270,
		"wspd": 12,
		"visib": "10+",
		"altim": 1017.2,
		"fltCat": "VFR",
		"wxString": "",
		"clouds": [{"cover": "FEW", "base": 25000}]
	}]`

	rec, err := p.Parse([]byte(payload), FeedMETAR, "KJFK")
	require.NoError(t, err)

	assert.Equal(t, "KJFK", rec.ICAO)
	assert.Equal(t, time.Date(2025, 8, 15, 16, 51, 0, 0, time.UTC), rec.IssueTime)
	require.NotNil(t, rec.WindDirDeg)
	assert.Equal(t, 270, *rec.WindDirDeg)
	require.NotNil(t, rec.VisibilitySM)
	assert.Equal(t, 10.0, *rec.VisibilitySM)
	assert.True(t, rec.VisibilityGreater)
	require.NotNil(t, rec.AltimeterInHg)
	assert.InDelta(t, 30.04, *rec.AltimeterInHg, 0.02)
	assert.Equal(t, CategoryVFR, rec.FlightCategory)
}

func TestParseMETARJSONVariableWind(t *testing.T) {
	p := testParser()

	payload := `[{"icaoId": "CYYZ", "rawOb": "CYYZ ...", "wdir": "VRB", "wspd": 3}]`

	rec, err := p.Parse([]byte(payload), FeedMETAR, "CYYZ")
	require.NoError(t, err)

	assert.True(t, rec.WindVariable)
	assert.Nil(t, rec.WindDirDeg)
	require.NotNil(t, rec.WindSpeedKt)
	assert.Equal(t, 3, *rec.WindSpeedKt)
}

func TestParseEmptyPayloadMeansNoReport(t *testing.T) {
	p := testParser()

	_, err := p.Parse([]byte(""), FeedMETAR, "CYYZ")
	assert.ErrorIs(t, err, ErrNoReport)

	_, err = p.Parse([]byte("[]"), FeedMETAR, "CYYZ")
	assert.ErrorIs(t, err, ErrNoReport)

	_, err = p.Parse([]byte("[]"), FeedTAF, "CYYZ")
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestParseGarbageIsParseError(t *testing.T) {
	p := testParser()

	_, err := p.Parse([]byte("%%% not a report %%%"), FeedMETAR, "CYYZ")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Raw, "not a report")

	_, err = p.Parse([]byte(`[{"broken":`), FeedMETAR, "CYYZ")
	require.ErrorAs(t, err, &parseErr)
}

func TestParseTAFJSONZeroPeriods(t *testing.T) {
	p := testParser()

	payload := `[{
		"icaoId": "CYYZ",
		"rawTAF": "TAF CYYZ 151138Z 1512/1618",
		"issueTime": "2025-08-15T11:38:00Z",
		"validTimeFrom": 1755255600,
		"validTimeTo": 1755342000,
		"fcsts": []
	}]`

	rec, err := p.Parse([]byte(payload), FeedTAF, "CYYZ")
	require.NoError(t, err)

	assert.Equal(t, FeedTAF, rec.Feed)
	require.NotNil(t, rec.ValidFrom)
	require.NotNil(t, rec.ValidTo)
	assert.Empty(t, rec.Periods)
}

func TestParseTAFJSONDropsMalformedPeriod(t *testing.T) {
	p := testParser()

	payload := `[{
		"icaoId": "CYYZ",
		"rawTAF": "TAF CYYZ 151138Z 1512/1618 27012KT P6SM FEW250",
		"issueTime": 1755257880,
		"validTimeFrom": 1755255600,
		"validTimeTo": 1755342000,
		"fcsts": [
			{"timeFrom": 1755255600, "timeTo": 1755277200, "wdir": 270, "wspd": 12, "visib": "6+"},
			{"timeFrom": null, "timeTo": null, "wdir": 300},
			{"timeFrom": 1755277200, "timeTo": 1755342000, "fcstChange": "BECMG", "wdir": 320, "wspd": 8}
		]
	}]`

	rec, err := p.Parse([]byte(payload), FeedTAF, "CYYZ")
	require.NoError(t, err)

	require.Len(t, rec.Periods, 2)
	assert.Equal(t, "", rec.Periods[0].Indicator)
	require.NotNil(t, rec.Periods[0].WindDirDeg)
	assert.Equal(t, 270, *rec.Periods[0].WindDirDeg)
	assert.True(t, rec.Periods[0].VisibilityGreater)
	assert.Equal(t, "BECMG", rec.Periods[1].Indicator)
}

func TestParseTAFText(t *testing.T) {
	p := testParser()

	raw := "TAF CYYZ 151138Z 1512/1618 27012KT P6SM FEW250 FM151800 30015G25KT 5SM -RA BKN030 BECMG 1606/1608 32008KT"
	rec, err := p.Parse([]byte(raw), FeedTAF, "CYYZ")
	require.NoError(t, err)

	assert.Equal(t, "CYYZ", rec.ICAO)
	assert.Equal(t, time.Date(2025, 8, 15, 11, 38, 0, 0, time.UTC), rec.IssueTime)
	require.NotNil(t, rec.ValidFrom)
	assert.Equal(t, time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC), *rec.ValidFrom)
	require.NotNil(t, rec.ValidTo)
	assert.Equal(t, time.Date(2025, 8, 16, 18, 0, 0, 0, time.UTC), *rec.ValidTo)

	require.Len(t, rec.Periods, 3)

	base := rec.Periods[0]
	assert.Equal(t, "", base.Indicator)
	require.NotNil(t, base.WindDirDeg)
	assert.Equal(t, 270, *base.WindDirDeg)
	assert.True(t, base.VisibilityGreater)
	// The FM group ends the base period.
	assert.Equal(t, time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC), base.To)

	fm := rec.Periods[1]
	assert.Equal(t, "FM", fm.Indicator)
	assert.Equal(t, time.Date(2025, 8, 15, 18, 0, 0, 0, time.UTC), fm.From)
	require.NotNil(t, fm.WindGustKt)
	assert.Equal(t, 25, *fm.WindGustKt)
	assert.Equal(t, []string{"-RA"}, fm.Weather)
	require.Len(t, fm.Clouds, 1)
	assert.Equal(t, "BKN", fm.Clouds[0].Cover)

	becmg := rec.Periods[2]
	assert.Equal(t, "BECMG", becmg.Indicator)
	assert.Equal(t, time.Date(2025, 8, 16, 6, 0, 0, 0, time.UTC), becmg.From)
	assert.Equal(t, time.Date(2025, 8, 16, 8, 0, 0, 0, time.UTC), becmg.To)
}

func TestParseTAFTextDropsMalformedChangeGroup(t *testing.T) {
	p := testParser()

	// BECMG without a validity window is dropped, the FM period survives.
	raw := "TAF CYYZ 151138Z 1512/1618 27012KT P6SM BECMG 32008KT FM151800 30015KT"
	rec, err := p.Parse([]byte(raw), FeedTAF, "CYYZ")
	require.NoError(t, err)

	require.Len(t, rec.Periods, 2)
	assert.Equal(t, "", rec.Periods[0].Indicator)
	assert.Equal(t, "FM", rec.Periods[1].Indicator)
}

func TestDeriveFlightCategory(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	base := func(ft int) []CloudLayer { return []CloudLayer{{Cover: "OVC", BaseFt: &ft}} }

	assert.Equal(t, CategoryLIFR, deriveFlightCategory(f(0.5), false, nil))
	assert.Equal(t, CategoryLIFR, deriveFlightCategory(f(10), false, base(400)))
	assert.Equal(t, CategoryIFR, deriveFlightCategory(f(2), false, nil))
	assert.Equal(t, CategoryIFR, deriveFlightCategory(f(10), false, base(900)))
	assert.Equal(t, CategoryMVFR, deriveFlightCategory(f(5), false, nil))
	assert.Equal(t, CategoryMVFR, deriveFlightCategory(f(10), false, base(3000)))
	assert.Equal(t, CategoryVFR, deriveFlightCategory(f(10), false, base(5000)))
	assert.Equal(t, CategoryVFR, deriveFlightCategory(f(10), true, nil))
	assert.Equal(t, CategoryUnknown, deriveFlightCategory(nil, false, nil))

	// Scattered layers never set a ceiling.
	sct := 800
	assert.Equal(t, CategoryVFR, deriveFlightCategory(f(10), false, []CloudLayer{{Cover: "SCT", BaseFt: &sct}}))
}

func TestParseMETARTextIdempotent(t *testing.T) {
	p := testParser()
	raw := []byte("KJFK 151651Z 27012KT 10SM FEW250 22/15 A3005")

	first, err := p.Parse(raw, FeedMETAR, "KJFK")
	require.NoError(t, err)
	second, err := p.Parse(raw, FeedMETAR, "KJFK")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
