// gatewatch runs the camera event-inference daemon: frames come in over the
// ingest API, pass through detection, tracking and the event detectors, and
// confirmed events land in sqlite and on the websocket feed.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gatewatch-data/gatewatch/internal/api"
	"github.com/gatewatch-data/gatewatch/internal/config"
	"github.com/gatewatch-data/gatewatch/internal/db"
	"github.com/gatewatch-data/gatewatch/internal/detect"
	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/monitoring"
	"github.com/gatewatch-data/gatewatch/internal/pipeline"
	"github.com/gatewatch-data/gatewatch/internal/version"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the site config JSON")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	devMode    = flag.Bool("dev", false, "Run with a stub detector instead of the inference server")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	// Optional .env for local runs; absence is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}
	flag.Parse()
	if *debug {
		monitoring.EnableDebug()
	}

	monitoring.Logf("gatewatch %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	database, err := db.Open(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub()
	go hub.Run(ctx)

	dbSink := pipeline.EventSinkFunc(func(ctx context.Context, ev events.Event) error {
		return database.InsertEvent(ctx, ev)
	})

	orch := pipeline.NewOrchestrator(detectorFactory(cfg), nil, dbSink, hub)
	if err := orch.Configure(cfg); err != nil {
		log.Fatalf("Failed to configure pipeline: %v", err)
	}
	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	defer func() {
		if err := orch.Unload(); err != nil {
			log.Printf("pipeline unload: %v", err)
		}
	}()

	server := api.NewServer(orch, database, hub)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}

	go func() {
		monitoring.Logf("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
}

// detectorFactory returns the model factory: HTTP clients against the
// configured inference server, or stubs in dev mode.
func detectorFactory(cfg *config.Config) detect.Factory {
	if *devMode {
		return func(v detect.Variant) (detect.Detector, error) {
			monitoring.Logf("dev mode: stub %s detector", v)
			return detect.NewStub(v, func(*vision.Frame) []vision.Detection { return nil }), nil
		}
	}
	return func(v detect.Variant) (detect.Detector, error) {
		return detect.NewHTTPDetector(cfg.GetInferenceURL(), v, nil), nil
	}
}
