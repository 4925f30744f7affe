package tracker

import (
	"context"
	"slices"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
)

// Swabby prunes the live picture: ships silent for longer than
// DerelictAfter are dropped, and history older than HistoryFor is trimmed.
// A zero duration disables that pass.
type Swabby struct {
	Schedule      time.Duration
	DerelictAfter time.Duration
	HistoryFor    time.Duration

	now func() time.Time
}

func NewSwabby(schedule, derelictAfter, historyFor time.Duration) *Swabby {
	if schedule <= 0 {
		schedule = time.Hour
	}
	return &Swabby{
		Schedule:      schedule,
		DerelictAfter: derelictAfter,
		HistoryFor:    historyFor,
		now:           time.Now,
	}
}

func (s *Swabby) Serve(ctx context.Context, ships *Ships) error {
	if s.DerelictAfter == 0 && s.HistoryFor == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.Schedule)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Cleanup(ships)
		}
	}
}

func (s *Swabby) Cleanup(ships *Ships) {
	var removed []int64
	if s.DerelictAfter > 0 {
		removed = s.derelictShips(ships)
	}
	if s.HistoryFor > 0 {
		s.routeHistory(ships)
	}
	if len(removed) > 0 {
		logging.Info().Int("count", len(removed)).Msg("removed derelict ships")
	}
}

func (s *Swabby) routeHistory(ships *Ships) {
	cutoff := s.now().UTC().Add(-s.HistoryFor).Unix()

	ships.HistoryLock.Lock()
	defer ships.HistoryLock.Unlock()

	for mmsi, history := range ships.History {
		// newest first, so everything from the first expired entry on goes
		for i, h := range history {
			if h.Timestamp < cutoff {
				history = slices.Delete(history, i, len(history))
				break
			}
		}
		ships.History[mmsi] = history
	}
}

func (s *Swabby) derelictShips(ships *Ships) []int64 {
	cutoff := s.now().UTC().Add(-s.DerelictAfter).Unix()
	var derelict []int64

	ships.StateLock.Lock()
	for mmsi, ship := range ships.State {
		if ship.LastUpdate < cutoff {
			derelict = append(derelict, mmsi)
			delete(ships.State, mmsi)
		}
	}
	metrics.TrackedVessels.Set(float64(len(ships.State)))
	ships.StateLock.Unlock()

	ships.HistoryLock.Lock()
	for _, mmsi := range derelict {
		delete(ships.History, mmsi)
	}
	ships.HistoryLock.Unlock()

	return derelict
}
