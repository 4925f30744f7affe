package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/bus"
	"github.com/abhinesh-kourav/maritime-route-simulation/kinematics"
	"github.com/abhinesh-kourav/maritime-route-simulation/simulator"
)

func TestRunAgainstSimulator(t *testing.T) {
	route, err := kinematics.RouteFromLonLat([][]float64{{0, 0}, {0, 10}})
	if err != nil {
		t.Fatal(err)
	}

	sim := simulator.New([]*kinematics.Vessel{kinematics.NewVessel(244000001, route, 12, kinematics.NoJitter)})
	hub := bus.NewHub(sim, time.Second)
	sim.AddSink(hub)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	retune := 0.0
	if err := run(ctx, url, 1, 0, &retune, 4, true); err != nil {
		t.Fatalf("run: %v", err)
	}

	// stop is acknowledged only after the tick loop exits
	deadline := time.Now().Add(2 * time.Second)
	for sim.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sim.Running() {
		t.Error("simulation still running after simctl exited")
	}
}
