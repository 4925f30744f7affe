// Command simulator moves a fleet of vessels along fixed routes and
// broadcasts their AIS position reports over a websocket bus.
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

	"github.com/abhinesh-kourav/maritime-route-simulation/bus"
	"github.com/abhinesh-kourav/maritime-route-simulation/config"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/simulator"
	"github.com/abhinesh-kourav/maritime-route-simulation/supervisor"
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

	routes, err := simulator.LoadRoutes(cfg.Simulator.RoutesFile)
	if err != nil {
		logging.Fatal().Err(err).Msg("could not load routes")
	}

	vessels, err := simulator.NewFleet(routes, simulator.FleetOptions{
		BaseSpeed:      cfg.Simulator.BaseSpeed,
		SpeedVariation: cfg.Simulator.SpeedVariation,
		MaxVessels:     cfg.Simulator.MaxVessels,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("could not build fleet")
	}
	logging.Info().Int("routes", len(routes)).Int("vessels", len(vessels)).Msg("fleet ready")

	sim := simulator.New(vessels)
	hub := bus.NewHub(sim, cfg.Simulator.WriteTimeout)
	sim.AddSink(hub)

	if cfg.Simulator.Serial.Port != "" {
		sink, err := simulator.OpenSerial(cfg.Simulator.Serial.Port, cfg.Simulator.Serial.BaudRate)
		if err != nil {
			logging.Fatal().Err(err).Msg("could not open serial output")
		}
		defer sink.Close()
		sim.AddSink(sink)
		logging.Info().Str("port", cfg.Simulator.Serial.Port).Int("baud", cfg.Simulator.Serial.BaudRate).Msg("serial output enabled")
	}

	server := &http.Server{
		Addr:              cfg.Simulator.ListenAddr,
		Handler:           hub,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree("simulator", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPI(supervisor.NewHTTPService("bus-server", server, 10*time.Second))
	tree.AddAPI(hub)
	tree.AddPipeline(supervisor.Func{Name: "simulator", Run: sim.Serve})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", cfg.Simulator.ListenAddr).Msg("bus listening")

	if cfg.Simulator.Autostart {
		if err := sim.Start(cfg.Simulator.IntervalMinutes, cfg.Simulator.SpeedFactor); err != nil {
			logging.Error().Err(err).Msg("could not start simulation")
		}
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("services did not stop in time")
	}
	logging.Info().Msg("simulator stopped")
}
