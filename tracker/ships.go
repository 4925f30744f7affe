// Package tracker keeps the live picture: the latest state of every vessel
// heard recently, a short moved-only track per vessel, and a geohash-sorted
// index for bounding box queries.
package tracker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/abhinesh-kourav/maritime-route-simulation/metrics"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
)

const (
	MOVING_SPEED_THRESHOLD = 0.1
	HEADING_RESET          = 511
)

// Marker values for map rendering.
const (
	MARKER_STATIONARY = iota
	MARKER_UNDERWAY
	MARKER_DRIFTING
)

type Ships struct {
	StateLock   sync.RWMutex
	State       map[int64]*State
	HistoryLock sync.RWMutex
	History     map[int64][]History

	now func() time.Time
}

type State struct {
	LatLon     []float64 `json:"latlon"`
	Heading    int       `json:"heading"`
	SOG        float64   `json:"sog"`
	COG        float64   `json:"cog"`
	NavStat    int       `json:"navStat"`
	Marker     int       `json:"marker"`
	Rotation   int       `json:"rotation"`
	LastReport time.Time `json:"lastReport"`
	LastUpdate int64     `json:"lastUpdate"`
	Geohash    uint64    `json:"-"`
}

type History struct {
	LatLon    []float64 `json:"latlon"`
	Timestamp int64     `json:"timestamp"`
}

func NewShips(now func() time.Time) *Ships {
	if now == nil {
		now = time.Now
	}
	return &Ships{
		State:   map[int64]*State{},
		History: map[int64][]History{},
		now:     now,
	}
}

// Observe folds one stored record into the live picture. Invalid records
// are ignored since their coordinates cannot be placed on a map.
func (s *Ships) Observe(r store.Record) {
	if !r.IsValid {
		return
	}

	latLon := []float64{r.Latitude, r.Longitude}
	now := s.now().UTC().Unix()

	s.StateLock.Lock()
	ship, ok := s.State[r.MMSI]
	if !ok {
		ship = &State{}
		s.State[r.MMSI] = ship
		metrics.TrackedVessels.Set(float64(len(s.State)))
	}
	ship.LatLon = latLon
	ship.Geohash = encode(r.Latitude, r.Longitude)
	ship.LastReport = r.Timestamp
	ship.LastUpdate = now
	if r.Speed != nil {
		ship.SOG = *r.Speed
	}
	if r.Course != nil {
		ship.COG = *r.Course
	}
	if r.Heading != nil {
		ship.Heading = *r.Heading
	}
	if r.NavigationStatus != nil {
		ship.NavStat = *r.NavigationStatus
	}
	updateMarker(ship)
	s.StateLock.Unlock()

	s.updateHistory(r.MMSI, latLon, now)
}

func (s *Ships) updateHistory(mmsi int64, latLon []float64, now int64) {
	s.HistoryLock.Lock()
	defer s.HistoryLock.Unlock()

	h := s.History[mmsi]
	if len(h) == 0 || shipMoved(latLon, h[0].LatLon) {
		// newest first
		s.History[mmsi] = append([]History{{LatLon: latLon, Timestamp: now}}, h...)
	}
}

// shipMoved compares positions rounded to four decimal places, so a
// stationary receiver's wobble does not grow the history.
func shipMoved(current []float64, previous []float64) bool {
	for i := 0; i < 2; i++ {
		if math.Round(current[i]*10000)/10000 != math.Round(previous[i]*10000)/10000 {
			return true
		}
	}
	return false
}

func updateMarker(ship *State) {
	switch {
	case ship.NavStat == 1 || ship.NavStat == 5 || ship.NavStat == 6:
		// at anchor, moored, aground
		ship.Marker = MARKER_STATIONARY
	case ship.SOG > MOVING_SPEED_THRESHOLD:
		ship.Marker = MARKER_UNDERWAY
	default:
		ship.Marker = MARKER_DRIFTING
	}

	if ship.Heading == HEADING_RESET {
		ship.Rotation = int(math.Round(ship.COG)) % 360
	} else {
		ship.Rotation = ship.Heading
	}
}

func (s *Ships) Count() int {
	s.StateLock.RLock()
	defer s.StateLock.RUnlock()
	return len(s.State)
}

func (s *Ships) GetShip(mmsi int64) (State, bool) {
	s.StateLock.RLock()
	defer s.StateLock.RUnlock()

	ship, ok := s.State[mmsi]
	if !ok {
		return State{}, false
	}
	return *ship, true
}

func (s *Ships) GetShipHistory(mmsi int64) ([]History, error) {
	s.HistoryLock.RLock()
	defer s.HistoryLock.RUnlock()

	h, ok := s.History[mmsi]
	if !ok {
		return nil, fmt.Errorf("mmsi %d does not exist in ship history", mmsi)
	}
	return append([]History(nil), h...), nil
}

// GetShipsInBox returns the ships inside bbox ([sw lat,lng], [ne lat,lng])
// as of the last geocache generation.
func (s *Ships) GetShipsInBox(bbox [2][2]float64, gc *Geocache) (map[int64]State, error) {
	candidates, err := gc.Candidates(bbox)
	if err != nil {
		return nil, err
	}

	s.StateLock.RLock()
	defer s.StateLock.RUnlock()

	res := make(map[int64]State)
	for _, mmsi := range candidates {
		ship, ok := s.State[mmsi]
		if !ok || !inBox(ship.LatLon, bbox) {
			continue
		}
		res[mmsi] = *ship
	}
	return res, nil
}

func inBox(latLon []float64, bbox [2][2]float64) bool {
	return latLon[0] >= bbox[0][0] && latLon[0] <= bbox[1][0] &&
		latLon[1] >= bbox[0][1] && latLon[1] <= bbox[1][1]
}
