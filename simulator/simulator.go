// Package simulator drives a fleet of vessels along their routes and emits
// one encoded position report per vessel per tick.
package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/aiscodec"
	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/kinematics"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
	ErrNoVessels      = errors.New("simulation has no vessels")
)

// Sink receives every position report the simulator produces.
type Sink interface {
	Publish(ctx context.Context, msg aisstream.WireMessage)
}

type SinkFunc func(ctx context.Context, msg aisstream.WireMessage)

func (f SinkFunc) Publish(ctx context.Context, msg aisstream.WireMessage) { f(ctx, msg) }

// Simulator owns its vessels exclusively. Only the run goroutine advances
// them, and at most one run exists at a time.
type Simulator struct {
	vessels []*kinematics.Vessel
	codec   *aiscodec.Codec
	sinks   []Sink

	// Now stamps the first tick of a run. Sleep waits between ticks and
	// reports false when the run was cancelled.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) bool

	mu          sync.Mutex
	running     bool
	speedFactor float64
	cancel      context.CancelFunc
	done        chan struct{}
}

func New(vessels []*kinematics.Vessel, sinks ...Sink) *Simulator {
	return &Simulator{
		vessels:     vessels,
		codec:       aiscodec.New(),
		sinks:       sinks,
		Now:         time.Now,
		Sleep:       sleep,
		speedFactor: aisstream.DEFAULT_SPEED_FACTOR,
	}
}

func (s *Simulator) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Simulator) Vessels() []*kinematics.Vessel {
	return s.vessels
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) SpeedFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speedFactor
}

// SetSpeedFactor takes effect from the next tick. A factor <= 0 removes the
// delay between ticks.
func (s *Simulator) SetSpeedFactor(f float64) {
	s.mu.Lock()
	s.speedFactor = f
	s.mu.Unlock()
	logging.Info().Float64("speed_factor", f).Msg("speed factor updated")
}

// Start launches the tick loop. It returns ErrAlreadyRunning without side
// effects when a run is in progress.
func (s *Simulator) Start(intervalMinutes, speedFactor float64) error {
	if len(s.vessels) == 0 {
		return ErrNoVessels
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.speedFactor = speedFactor
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, intervalMinutes, s.done)

	logging.Info().Float64("interval_minutes", intervalMinutes).Float64("speed_factor", speedFactor).Int("vessels", len(s.vessels)).Msg("simulation started")
	return nil
}

// Stop cancels the current run and waits for the tick loop to exit.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	logging.Info().Msg("simulation stopped")
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (s *Simulator) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Serve blocks until ctx ends and then stops any run in progress.
func (s *Simulator) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return ctx.Err()
}

func (s *Simulator) run(ctx context.Context, intervalMinutes float64, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancel()
		s.mu.Unlock()
		close(done)
	}()

	simTime := s.Now()
	step := time.Duration(intervalMinutes * float64(time.Minute))

	for ctx.Err() == nil {
		active := s.tick(ctx, intervalMinutes, simTime)
		metrics.SimulatorTicks.Inc()
		metrics.SimulatorActiveVessels.Set(float64(active))

		if active == 0 {
			logging.Info().Time("sim_time", simTime).Msg("all vessels have completed their routes, stopping simulation")
			return
		}

		if f := s.SpeedFactor(); f > 0 {
			wait := time.Duration(intervalMinutes * 60 / f * float64(time.Second))
			if !s.Sleep(ctx, wait) {
				return
			}
		}

		simTime = simTime.Add(step)
	}
}

// tick advances every vessel once and publishes its report. Completed
// vessels keep reporting their final position.
func (s *Simulator) tick(ctx context.Context, intervalMinutes float64, simTime time.Time) int {
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()

	active := 0
	for _, v := range s.vessels {
		u := v.Advance(intervalMinutes)
		if !u.Complete {
			active++
		}

		sentences, err := s.codec.EncodePosition(positionFields(v.MMSI, u))
		if err != nil {
			logging.Error().Err(err).Int("mmsi", v.MMSI).Msg("could not encode position report")
			continue
		}

		msg := aisstream.NewWireMessage(v.MMSI, simTime, sentences)
		for _, sink := range sinks {
			sink.Publish(ctx, msg)
		}

		logging.Debug().Int("mmsi", v.MMSI).Float64("lat", u.Position.Lat).Float64("lon", u.Position.Lon).Time("sim_time", simTime).Msg("generated position report")
	}

	return active
}

func positionFields(mmsi int, u kinematics.Update) aiscodec.PositionFields {
	heading := int(math.Round(u.Heading))
	if heading >= 360 {
		heading = 0
	}

	return aiscodec.PositionFields{
		MMSI:    mmsi,
		Lat:     u.Position.Lat,
		Lon:     u.Position.Lon,
		Course:  u.Heading,
		Heading: heading,
		Speed:   math.Round(u.Speed*10) / 10,
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
