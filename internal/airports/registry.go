package airports

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"

	"github.com/skywatch/avweather/pkg/logger"
)

// Record is one airport reference entry. Immutable after load.
type Record struct {
	ICAO         string  `json:"icao"`
	IATA         string  `json:"iata,omitempty"`
	Name         string  `json:"name"`
	City         string  `json:"city,omitempty"`
	Country      string  `json:"country,omitempty"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	ElevationFt  *int    `json:"elevation_ft,omitempty"` // nil when the dataset has no surveyed elevation
	MagneticVarE float64 `json:"magnetic_variation_deg"` // declination, +East -West
}

// Registry holds the static airport reference dataset, keyed by uppercase
// ICAO identifier. Read-only after Load, so lookups need no locking.
type Registry struct {
	byICAO map[string]*Record
	logger *logger.Logger
}

// Load reads an OurAirports-format CSV file into a registry. Rows without a
// usable ident or coordinates are skipped, not fatal; the dataset carries
// heliports and closed fields with sparse data.
func Load(path string, log *logger.Logger) (*Registry, error) {
	log = log.Named("airports")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening airport dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading airport dataset header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading airport dataset: %w", err)
	}

	now := time.Now().UTC()
	reg := &Registry{
		byICAO: make(map[string]*Record, len(rows)),
		logger: log,
	}

	skipped := 0
	for _, row := range rows {
		if len(row) < 7 || row[1] == "" {
			skipped++
			continue
		}

		lat, latErr := strconv.ParseFloat(row[4], 64)
		lon, lonErr := strconv.ParseFloat(row[5], 64)
		if latErr != nil || lonErr != nil {
			skipped++
			continue
		}

		rec := &Record{
			ICAO:      strings.ToUpper(row[1]),
			Name:      row[3],
			Latitude:  lat,
			Longitude: lon,
		}
		if row[6] != "" {
			if elev, err := strconv.ParseFloat(row[6], 64); err == nil {
				e := int(elev)
				rec.ElevationFt = &e
			}
		}
		if len(row) > 8 {
			rec.Country = row[8]
		}
		if len(row) > 10 {
			rec.City = row[10]
		}
		if len(row) > 13 {
			rec.IATA = row[13]
		}
		elevFt := 0.0
		if rec.ElevationFt != nil {
			elevFt = float64(*rec.ElevationFt)
		}
		rec.MagneticVarE = magneticVariation(rec.Latitude, rec.Longitude, elevFt, now)

		reg.byICAO[rec.ICAO] = rec
	}

	log.Info("Airport dataset loaded",
		logger.String("path", path),
		logger.Int("airports", len(reg.byICAO)),
		logger.Int("skipped_rows", skipped))
	return reg, nil
}

// NewFromRecords builds a registry from in-memory records, for tests
func NewFromRecords(records []Record, log *logger.Logger) *Registry {
	reg := &Registry{
		byICAO: make(map[string]*Record, len(records)),
		logger: log.Named("airports"),
	}
	for i := range records {
		rec := records[i]
		rec.ICAO = strings.ToUpper(rec.ICAO)
		reg.byICAO[rec.ICAO] = &rec
	}
	return reg
}

// Lookup finds an airport by identifier, case-insensitively
func (r *Registry) Lookup(ident string) (*Record, bool) {
	rec, ok := r.byICAO[strings.ToUpper(strings.TrimSpace(ident))]
	return rec, ok
}

// Len returns the number of loaded airports
func (r *Registry) Len() int {
	return len(r.byICAO)
}

// magneticVariation computes the magnetic declination for a position.
// Returns degrees, +East -West; zero when the model cannot evaluate.
func magneticVariation(lat, lon, elevFt float64, date time.Time) float64 {
	altM := elevFt * 0.3048

	loc := egm96.NewLocationGeodetic(lat, lon, altM)
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}
