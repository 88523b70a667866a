package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skywatch/avweather/internal/airports"
	"github.com/skywatch/avweather/internal/weather"
	"github.com/skywatch/avweather/internal/websocket"
	"github.com/skywatch/avweather/pkg/logger"
)

// Router wires the HTTP surface together
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	logger   *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(weatherService *weather.Service, registry *airports.Registry, wsServer *websocket.Server, log *logger.Logger) *Router {
	return &Router{
		handler:  NewHandler(weatherService, registry, log),
		wsServer: wsServer,
		logger:   log.Named("api-router"),
	}
}

// Routes builds the chi route tree
func (r *Router) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(r.requestLogger)
	mux.Use(middleware.Recoverer)

	mux.Route("/api/v1", func(api chi.Router) {
		api.Route("/weather", func(wx chi.Router) {
			wx.Post("/update", r.handler.UpdateWeather)
			wx.Get("/", r.handler.GetAllWeather)
			wx.Get("/{icao}", r.handler.GetAirportWeather)
			wx.Get("/{icao}/{feed}", r.handler.GetFeedWeather)
		})
		api.Get("/airports/{icao}", r.handler.GetAirport)
		api.Get("/stations", r.handler.GetStations)
	})

	mux.Get("/ws", r.wsServer.HandleConnection)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// requestLogger emits one structured entry per request
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		r.logger.Debug("Request handled",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)))
	})
}
