package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skywatch/avweather/internal/airports"
	"github.com/skywatch/avweather/internal/weather"
	"github.com/skywatch/avweather/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	weatherService *weather.Service
	registry       *airports.Registry
	logger         *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(weatherService *weather.Service, registry *airports.Registry, log *logger.Logger) *Handler {
	return &Handler{
		weatherService: weatherService,
		registry:       registry,
		logger:         log.Named("api-handler"),
	}
}

// updateRequest is the body of POST /api/v1/weather/update. Both fields are
// optional; omitting one broadens the scope along that axis.
type updateRequest struct {
	ICAOCode string `json:"icao_code,omitempty"`
	FeedType string `json:"feed_type,omitempty"`
}

// UpdateWeather triggers one fetch attempt per target in scope and returns
// the per-target outcome summary
func (h *Handler) UpdateWeather(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	scope := weather.UpdateScope{ICAO: req.ICAOCode}
	if req.FeedType != "" {
		feed, err := weather.ParseFeedType(req.FeedType)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope.Feed = feed
	}

	outcomes, err := h.weatherService.Update(r.Context(), scope)
	if err != nil {
		if errors.Is(err, weather.ErrNotMonitored) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Update failed", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "update failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"targets": outcomes,
	})
}

// GetAllWeather returns the last-known state for every tracked feed
func (h *Handler) GetAllWeather(w http.ResponseWriter, r *http.Request) {
	states := h.weatherService.Store().All()

	out := make(map[string]weather.FeedState, len(states))
	for key, state := range states {
		out[key.String()] = state
	}
	WriteJSON(w, http.StatusOK, out)
}

// GetAirportWeather returns both feed states for one airport
func (h *Handler) GetAirportWeather(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(chi.URLParam(r, "icao"))

	states := h.weatherService.Store().ForAirport(icao)
	if len(states) == 0 {
		WriteError(w, http.StatusNotFound, "no weather state for "+icao)
		return
	}
	WriteJSON(w, http.StatusOK, states)
}

// GetFeedWeather returns one feed state for one airport
func (h *Handler) GetFeedWeather(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToUpper(chi.URLParam(r, "icao"))

	feed, err := weather.ParseFeedType(chi.URLParam(r, "feed"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, ok := h.weatherService.Store().Get(weather.FeedKey{ICAO: icao, Feed: feed})
	if !ok {
		WriteError(w, http.StatusNotFound, "no weather state for "+icao+"/"+string(feed))
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// GetAirport returns the registry record for one airport, a setup-time aid
// for validating identifiers before adding them to the monitored set
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	ident := chi.URLParam(r, "icao")

	record, ok := h.registry.Lookup(ident)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown airport identifier: "+ident)
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// GetStations returns the monitored airport set
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	type stationView struct {
		ICAO  string             `json:"icao"`
		Feeds []weather.FeedType `json:"feeds"`
	}
	stations := h.weatherService.Stations()
	out := make([]stationView, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationView{ICAO: st.ICAO, Feeds: st.Feeds})
	}
	WriteJSON(w, http.StatusOK, out)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
