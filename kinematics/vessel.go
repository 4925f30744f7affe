package kinematics

import (
	"math/rand/v2"

	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

const (
	MIN_SPEED_KNOTS    = 5.0
	MAX_SPEED_KNOTS    = 20.0
	SPEED_JITTER_KNOTS = 2.0
)

// Jitter yields a uniform value in [-1, 1]. It is scaled by
// SPEED_JITTER_KNOTS after every tick.
type Jitter func() float64

// RandJitter draws from r, or from the global source when r is nil.
func RandJitter(r *rand.Rand) Jitter {
	if r == nil {
		return func() float64 { return rand.Float64()*2 - 1 }
	}
	return func() float64 { return r.Float64()*2 - 1 }
}

// NoJitter keeps speed constant; useful for deterministic runs.
func NoJitter() float64 { return 0 }

// Update is the result of advancing a vessel by one tick.
type Update struct {
	Position Point   `json:"position"`
	Heading  float64 `json:"heading"`
	Speed    float64 `json:"speed"`
	Complete bool    `json:"complete"`
}

// Vessel is the mutable state of one simulated ship. A Vessel is owned by a
// single goroutine; it carries no lock.
type Vessel struct {
	MMSI int

	route      *Route
	position   Point
	heading    float64
	speed      float64 // knots
	traveledKm float64
	complete   bool
	jitter     Jitter
}

// NewVessel places a vessel at the start of route. speedKnots is clamped to
// the operational band.
func NewVessel(mmsi int, route *Route, speedKnots float64, jitter Jitter) *Vessel {
	if jitter == nil {
		jitter = RandJitter(nil)
	}
	return &Vessel{
		MMSI:     mmsi,
		route:    route,
		position: route.Start(),
		heading:  route.InitialHeading(),
		speed:    clampSpeed(speedKnots),
		jitter:   jitter,
	}
}

func clampSpeed(knots float64) float64 {
	if knots < MIN_SPEED_KNOTS {
		return MIN_SPEED_KNOTS
	}
	if knots > MAX_SPEED_KNOTS {
		return MAX_SPEED_KNOTS
	}
	return knots
}

// Advance moves the vessel along its route by elapsedMinutes of simulated
// time. Once the accumulated distance reaches the route length the vessel
// sits on the final waypoint and stays complete.
func (v *Vessel) Advance(elapsedMinutes float64) Update {
	v.traveledKm += KnotsToKmh(v.speed) * (elapsedMinutes / 60.0)

	if v.complete || v.traveledKm >= v.route.LengthKm() {
		v.complete = true
		v.position = v.route.End()
	} else {
		v.locate()
	}

	// every tick perturbs speed, the arriving one included
	v.speed = clampSpeed(v.speed + v.jitter()*SPEED_JITTER_KNOTS)

	return v.snapshot()
}

func (v *Vessel) locate() {
	pos, seg := v.route.Locate(v.traveledKm)
	v.position = pos
	if seg >= 0 {
		v.heading = v.route.SegmentBearing(seg)
		return
	}
	logging.Debug().
		Int("mmsi", v.MMSI).
		Float64("lon", pos.Lon).
		Float64("lat", pos.Lat).
		Msg("no route segment brackets vessel position, keeping heading")
}

func (v *Vessel) snapshot() Update {
	return Update{
		Position: v.position,
		Heading:  v.heading,
		Speed:    v.speed,
		Complete: v.complete,
	}
}

func (v *Vessel) Position() Point     { return v.position }
func (v *Vessel) Heading() float64    { return v.heading }
func (v *Vessel) Speed() float64      { return v.speed }
func (v *Vessel) TraveledKm() float64 { return v.traveledKm }
func (v *Vessel) Complete() bool      { return v.complete }
func (v *Vessel) Route() *Route       { return v.route }
