package ingest

import (
	"strconv"

	"github.com/abhinesh-kourav/maritime-route-simulation/aiscodec"
)

const (
	ERR_INVALID_MMSI   = "Invalid MMSI number"
	ERR_MISSING_COORDS = "Missing coordinates"
	ERR_MISSING_TYPE   = "Missing required field: msg_type"
)

// Validate checks decoded fields and collects every violated rule.
func Validate(f aiscodec.Fields) (bool, []string) {
	var errs []string

	if f.MMSI == nil || *f.MMSI <= 0 {
		errs = append(errs, ERR_INVALID_MMSI)
	}

	if f.Lat == nil || f.Lon == nil {
		errs = append(errs, ERR_MISSING_COORDS)
	} else {
		if *f.Lat < -90 || *f.Lat > 90 {
			errs = append(errs, "Invalid latitude: "+formatCoord(*f.Lat))
		}
		if *f.Lon < -180 || *f.Lon > 180 {
			errs = append(errs, "Invalid longitude: "+formatCoord(*f.Lon))
		}
	}

	if f.Type == nil {
		errs = append(errs, ERR_MISSING_TYPE)
	}

	return len(errs) == 0, errs
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
