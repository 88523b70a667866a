package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/skywatch/avweather/internal/airports"
	"github.com/skywatch/avweather/internal/api"
	"github.com/skywatch/avweather/internal/config"
	"github.com/skywatch/avweather/internal/observability"
	"github.com/skywatch/avweather/internal/weather"
	"github.com/skywatch/avweather/internal/websocket"
	"github.com/skywatch/avweather/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// A .env file is optional; environment variables override file config.
	_ = godotenv.Load()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting avweather server",
		logger.String("version", Version),
		logger.Int("stations", len(cfg.Stations)))

	registry, err := airports.Load(cfg.Airports.DBPath, log)
	if err != nil {
		log.Error("Failed to load airport dataset", logger.Error(err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsServer := websocket.NewServer(log, metrics)
	go wsServer.Run(ctx)

	store := weather.NewStore(clock, log)
	client := weather.NewClient(weather.ClientConfig{
		APIBaseURL:            cfg.Weather.APIBaseURL,
		RequestTimeoutSeconds: cfg.Weather.RequestTimeoutSeconds,
		UserAgent:             cfg.Weather.UserAgent,
		BreakerOpenSeconds:    cfg.Weather.BreakerOpenSeconds,
	}, log)
	parser := weather.NewParser(clock)

	stations := make([]weather.MonitoredStation, 0, len(cfg.Stations))
	for _, st := range cfg.Stations {
		feeds := make([]weather.FeedType, 0, len(st.Feeds))
		for _, f := range st.Feeds {
			feed, err := weather.ParseFeedType(f)
			if err != nil {
				log.Error("Invalid feed in station config",
					logger.String("icao", st.ICAO),
					logger.Error(err))
				os.Exit(1)
			}
			feeds = append(feeds, feed)
		}
		stations = append(stations, weather.MonitoredStation{ICAO: st.ICAO, Feeds: feeds})
	}

	weatherService, err := weather.NewService(stations, registry, client, parser, store, metrics, wsServer, log)
	if err != nil {
		// Fail closed: an unknown identifier in the monitored set means no
		// fetch is ever attempted.
		log.Error("Failed to create weather service", logger.Error(err))
		os.Exit(1)
	}

	router := api.NewRouter(weatherService, registry, wsServer, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	log.Info("Stopping weather service...")
	weatherService.Stop()
	log.Info("Weather service stopped.")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
