// Command receiver subscribes to the AIS bus, validates every message,
// stores it in PostgreSQL and serves the read-only portal.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/config"
	"github.com/abhinesh-kourav/maritime-route-simulation/ingest"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/portal"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
	"github.com/abhinesh-kourav/maritime-route-simulation/supervisor"
	"github.com/abhinesh-kourav/maritime-route-simulation/tracker"
)

func main() {
	configFile := flag.String("c", "", "config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("could not load config")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := store.Open(startCtx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		cancel()
		logging.Fatal().Err(err).Msg("could not connect to database")
	}
	if cfg.Database.Migrate {
		if err := db.EnsureSchema(startCtx); err != nil {
			cancel()
			db.Close()
			logging.Fatal().Err(err).Msg("could not create schema")
		}
	}
	cancel()

	var saver ingest.QualitySaver
	if cfg.Quality.Persist {
		saver = db
	}
	quality := ingest.NewQualityMonitor(cfg.Quality.ReportInterval, saver, nil)

	buffer := store.NewBuffer(db, store.BufferOptions{
		Size:             cfg.Buffer.Size,
		FlushInterval:    cfg.Buffer.FlushInterval,
		FlushTimeout:     cfg.Buffer.FlushTimeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		OnFlush: func(written, inserted int) {
			quality.RecordDuplicates(written - inserted)
		},
	})

	ships := tracker.NewShips(nil)
	geocache := tracker.NewGeocache(cfg.Tracker.GeocacheRefresh)
	swabby := tracker.NewSwabby(cfg.Tracker.CleanupEvery, cfg.Tracker.DerelictAfter, cfg.Tracker.HistoryFor)

	client := aisstream.NewClient(cfg.Receiver.SourceURL, aisstream.Options{
		Backoff:           cfg.Receiver.ReconnectBackoff,
		DialTimeout:       cfg.Receiver.DialTimeout,
		HeartbeatInterval: cfg.Receiver.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Receiver.HeartbeatTimeout,
	})
	processor := ingest.NewProcessor(client.Msg, buffer, quality, ships)

	tree := supervisor.NewTree("receiver", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddPipeline(supervisor.Func{Name: "aisstream", Run: client.Serve})
	tree.AddPipeline(processor)
	tree.AddPipeline(supervisor.Func{Name: "geocache", Run: func(ctx context.Context) error {
		return geocache.Serve(ctx, ships)
	}})
	tree.AddPipeline(supervisor.Func{Name: "swabby", Run: func(ctx context.Context) error {
		return swabby.Serve(ctx, ships)
	}})

	if cfg.Portal.Enabled {
		router := portal.New(db, quality, ships, geocache).Router(portal.Options{
			CORSOrigins: cfg.Portal.CORSOrigins,
			RateLimit:   cfg.Portal.RateLimit,
			RateWindow:  cfg.Portal.RateWindow,
		})
		server := &http.Server{
			Addr:              cfg.Portal.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		tree.AddAPI(supervisor.NewHTTPService("portal", server, 10*time.Second))
		logging.Info().Str("addr", cfg.Portal.ListenAddr).Msg("portal enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("source", cfg.Receiver.SourceURL).Msg("receiver starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited")
	}

	// The processor has stopped, so nothing appends after this point.
	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Buffer.FlushTimeout)
	if err := buffer.Close(closeCtx); err != nil {
		logging.Error().Err(err).Msg("final flush failed")
	}
	closeCancel()

	snap := quality.Snapshot()
	logging.Info().Int64("total", snap.Total).Int64("valid", snap.Valid).Int64("invalid", snap.Invalid).Msg("receiver stopped")
	db.Close()
}
