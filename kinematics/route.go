package kinematics

import (
	"errors"
)

var ErrEmptyRoute = errors.New("route has no waypoints")

// Route is an immutable polyline of waypoints with precomputed great-circle
// segment lengths.
type Route struct {
	waypoints []Point
	cumKm     []float64 // cumKm[i] is the distance from waypoints[0] to waypoints[i]
}

// NewRoute copies waypoints so later edits by the caller cannot move a vessel.
func NewRoute(waypoints []Point) (*Route, error) {
	if len(waypoints) == 0 {
		return nil, ErrEmptyRoute
	}

	wp := make([]Point, len(waypoints))
	copy(wp, waypoints)

	cum := make([]float64, len(wp))
	for i := 1; i < len(wp); i++ {
		cum[i] = cum[i-1] + Haversine(wp[i-1], wp[i])
	}

	return &Route{waypoints: wp, cumKm: cum}, nil
}

// RouteFromLonLat builds a route from [lon, lat] pairs, the layout used by
// route files and GeoJSON.
func RouteFromLonLat(coords [][]float64) (*Route, error) {
	pts := make([]Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, Point{Lon: c[0], Lat: c[1]})
	}
	return NewRoute(pts)
}

// LengthKm is the total great-circle length of the route.
func (r *Route) LengthKm() float64 {
	return r.cumKm[len(r.cumKm)-1]
}

func (r *Route) Start() Point { return r.waypoints[0] }
func (r *Route) End() Point   { return r.waypoints[len(r.waypoints)-1] }

// Waypoints returns a copy of the route's points.
func (r *Route) Waypoints() []Point {
	wp := make([]Point, len(r.waypoints))
	copy(wp, r.waypoints)
	return wp
}

// Locate returns the point at distanceKm along the route and the index of the
// segment that contains it. Within a segment the position is interpolated
// linearly by the fraction of that segment's great-circle length. The index is
// -1 when no segment of positive length brackets the distance.
func (r *Route) Locate(distanceKm float64) (Point, int) {
	if distanceKm <= 0 {
		return r.Start(), r.segmentFrom(0)
	}
	if distanceKm >= r.LengthKm() {
		return r.End(), -1
	}

	for i := 0; i < len(r.waypoints)-1; i++ {
		segLen := r.cumKm[i+1] - r.cumKm[i]
		if segLen <= 0 || distanceKm > r.cumKm[i+1] {
			continue
		}

		t := (distanceKm - r.cumKm[i]) / segLen
		a, b := r.waypoints[i], r.waypoints[i+1]
		// take the short way across the antimeridian
		dLon := b.Lon - a.Lon
		if dLon > 180 {
			dLon -= 360
		} else if dLon < -180 {
			dLon += 360
		}
		return Point{
			Lon: WrapLongitude(a.Lon + dLon*t),
			Lat: a.Lat + (b.Lat-a.Lat)*t,
		}, i
	}

	return r.End(), -1
}

// segmentFrom finds the first segment of positive length at or after i.
func (r *Route) segmentFrom(i int) int {
	for ; i < len(r.waypoints)-1; i++ {
		if r.cumKm[i+1]-r.cumKm[i] > 0 {
			return i
		}
	}
	return -1
}

// SegmentBearing is the initial bearing of segment i.
func (r *Route) SegmentBearing(i int) float64 {
	return Bearing(r.waypoints[i], r.waypoints[i+1])
}

// InitialHeading is the bearing of the first non-degenerate segment, or 0.
func (r *Route) InitialHeading() float64 {
	if i := r.segmentFrom(0); i >= 0 {
		return r.SegmentBearing(i)
	}
	return 0
}
