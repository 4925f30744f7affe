package simulator

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/goccy/go-json"

	"github.com/abhinesh-kourav/maritime-route-simulation/kinematics"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

const (
	MMSI_BASE  = 200000000
	MMSI_RANGE = 100000000
)

type Port struct {
	Name string `json:"name"`
}

// RouteSpec is one entry of the routes file produced by route generation.
type RouteSpec struct {
	StartPort        Port        `json:"start_port"`
	EndPort          Port        `json:"end_port"`
	RouteCoordinates [][]float64 `json:"route_coordinates"`
}

func LoadRoutes(path string) ([]RouteSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read routes file: %w", err)
	}

	var routes []RouteSpec
	if err := json.Unmarshal(b, &routes); err != nil {
		return nil, fmt.Errorf("could not unmarshal routes file: %w", err)
	}
	return routes, nil
}

type FleetOptions struct {
	BaseSpeed      float64
	SpeedVariation float64
	// MaxVessels caps the fleet size; zero means one vessel per route.
	MaxVessels int
	Rand       *rand.Rand
}

// NewFleet creates one vessel per usable route. Routes without coordinates
// are skipped.
func NewFleet(routes []RouteSpec, opts FleetOptions) ([]*kinematics.Vessel, error) {
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	used := make(map[int]struct{}, len(routes))
	vessels := make([]*kinematics.Vessel, 0, len(routes))

	for i, rs := range routes {
		if opts.MaxVessels > 0 && len(vessels) >= opts.MaxVessels {
			break
		}

		route, err := kinematics.RouteFromLonLat(rs.RouteCoordinates)
		if err != nil {
			logging.Warn().Int("route", i).Err(err).Msg("skipping route without valid coordinates")
			continue
		}

		mmsi := MMSI_BASE + r.IntN(MMSI_RANGE)
		for {
			if _, ok := used[mmsi]; !ok {
				break
			}
			mmsi = MMSI_BASE + r.IntN(MMSI_RANGE)
		}
		used[mmsi] = struct{}{}

		speed := opts.BaseSpeed + (r.Float64()*2-1)*opts.SpeedVariation
		vessels = append(vessels, kinematics.NewVessel(mmsi, route, speed, kinematics.RandJitter(r)))

		logging.Info().Int("mmsi", mmsi).Str("from", rs.StartPort.Name).Str("to", rs.EndPort.Name).Float64("speed", speed).Float64("route_km", route.LengthKm()).Msg("created vessel")
	}

	if len(vessels) == 0 {
		return nil, ErrNoVessels
	}
	return vessels, nil
}
