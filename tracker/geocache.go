package tracker

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bbailey1024/geohash"
)

const (
	LATMAX = 90.0
	LATMIN = -90.0
	LNGMAX = 180.0
	LNGMIN = -180.0

	DEFAULT_GEOCACHE_REFRESH = 10 * time.Second
)

var ErrEmptyGeocache = errors.New("geocache list is empty, binary search cannot be performed")

// Geocache is a snapshot of ship positions sorted by 64-bit geohash. Every
// point inside a box hashes between the box's south-west and north-east
// corners, so a box query is two binary searches plus a filter.
type Geocache struct {
	Refresh time.Duration

	mu         sync.RWMutex
	list       []GeoMMSI
	lastUpdate int64
}

type GeoMMSI struct {
	MMSI    int64
	Geohash uint64
}

func NewGeocache(refresh time.Duration) *Geocache {
	if refresh <= 0 {
		refresh = DEFAULT_GEOCACHE_REFRESH
	}
	return &Geocache{Refresh: refresh}
}

// Serve regenerates the cache every Refresh until ctx ends. The first five
// generations run a second apart so a fresh process fills the map quickly.
func (gc *Geocache) Serve(ctx context.Context, s *Ships) error {
	warmup := time.NewTicker(time.Second)
	defer warmup.Stop()

	for i := 0; i < 5; i++ {
		gc.Generate(s)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-warmup.C:
		}
	}

	ticker := time.NewTicker(gc.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.Generate(s)
		}
	}
}

func (gc *Geocache) Generate(s *Ships) {
	s.StateLock.RLock()
	list := make([]GeoMMSI, 0, len(s.State))
	for mmsi, state := range s.State {
		list = append(list, GeoMMSI{MMSI: mmsi, Geohash: state.Geohash})
	}
	s.StateLock.RUnlock()

	slices.SortFunc(list, func(a, b GeoMMSI) int {
		switch {
		case a.Geohash < b.Geohash:
			return -1
		case a.Geohash > b.Geohash:
			return 1
		}
		return 0
	})

	gc.mu.Lock()
	gc.list = list
	gc.lastUpdate = time.Now().Unix()
	gc.mu.Unlock()
}

func (gc *Geocache) LastUpdate() int64 {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.lastUpdate
}

func (gc *Geocache) Len() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return len(gc.list)
}

// Candidates returns the MMSIs whose geohash falls between the box corners.
// The result is a superset of the ships inside the box.
func (gc *Geocache) Candidates(bbox [2][2]float64) ([]int64, error) {
	gc.mu.RLock()
	defer gc.mu.RUnlock()

	if len(gc.list) == 0 {
		return nil, ErrEmptyGeocache
	}

	begin, end := gc.binarySearch(bbox)
	out := make([]int64, 0, end-begin)
	for _, g := range gc.list[begin:end] {
		out = append(out, g.MMSI)
	}
	return out, nil
}

// binarySearch returns the half-open index range [begin, end) of the sorted
// list covered by bbox.
func (gc *Geocache) binarySearch(bbox [2][2]float64) (int, int) {
	sw := encode(bbox[0][0], bbox[0][1])
	ne := encode(bbox[1][0], bbox[1][1])

	begin := sort.Search(len(gc.list), func(i int) bool { return gc.list[i].Geohash >= sw })
	end := sort.Search(len(gc.list), func(i int) bool { return gc.list[i].Geohash > ne })
	if end < begin {
		end = begin
	}
	return begin, end
}

// The encoder wraps to 0 at the upper bounds, so they are pulled inside by a
// margin large enough to survive its floating point rounding.
const BOUND_MARGIN = 1e-9

func clampLat(v float64) float64 { return min(max(v, LATMIN), LATMAX-BOUND_MARGIN) }
func clampLng(v float64) float64 { return min(max(v, LNGMIN), LNGMAX-BOUND_MARGIN) }

func encode(lat, lng float64) uint64 {
	return geohash.EncodeInt(clampLat(lat), clampLng(lng))
}
