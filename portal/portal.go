// Package portal serves the read-only HTTP API over stored AIS history and
// the live vessel picture.
package portal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhinesh-kourav/maritime-route-simulation/ingest"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
	"github.com/abhinesh-kourav/maritime-route-simulation/store"
	"github.com/abhinesh-kourav/maritime-route-simulation/tracker"
)

const (
	QUERY_TIMEOUT = 10 * time.Second
	MAX_RECENT    = 1000
)

// Reader is the subset of *store.Postgres the portal queries.
type Reader interface {
	Ping(ctx context.Context) error
	ListVessels(ctx context.Context) ([]store.VesselSummary, error)
	Track(ctx context.Context, mmsi int64, start, end *time.Time) ([]store.TrackPoint, error)
	VesselStats(ctx context.Context, mmsi int64, start, end *time.Time) (store.VesselStats, error)
	RecentPositions(ctx context.Context, limit int) ([]store.TrackPoint, error)
	Overview(ctx context.Context) (store.Overview, error)
	LatestQuality(ctx context.Context) (store.QualitySnapshot, bool, error)
}

// QualitySource reports the in-process counters of the running receiver.
type QualitySource interface {
	Snapshot() store.QualitySnapshot
}

// Options tunes the middleware stack. A zero RateLimit disables limiting.
type Options struct {
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
}

type Portal struct {
	db      Reader
	quality QualitySource
	ships   *tracker.Ships
	geo     *tracker.Geocache
}

type qualityResponse struct {
	Current         store.QualitySnapshot  `json:"current"`
	ValidPercentage float64                `json:"valid_percentage"`
	LastSaved       *store.QualitySnapshot `json:"last_saved,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(db Reader, quality QualitySource, ships *tracker.Ships, geo *tracker.Geocache) *Portal {
	return &Portal{db: db, quality: quality, ships: ships, geo: geo}
}

func (p *Portal) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
	}
	if opts.RateLimit > 0 {
		window := opts.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(opts.RateLimit, window))
	}

	r.Get("/healthz", p.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/vessels", p.vessels)
	r.Get("/vessels/{mmsi}/track", p.track)
	r.Get("/vessels/{mmsi}/stats", p.stats)
	r.Get("/positions/recent", p.recent)
	r.Get("/overview", p.overview)
	r.Get("/quality", p.qualityReport)

	r.Route("/live", func(r chi.Router) {
		r.Get("/count", p.shipCount)
		r.Get("/ships/{sw}/{ne}", p.shipsBbox)
		r.Get("/history/{mmsi}", p.shipHistory)
	})

	return r
}

func (p *Portal) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	if err := p.db.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (p *Portal) vessels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	res, err := p.db.ListVessels(ctx)
	if err != nil {
		serverError(w, "vessels", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) track(w http.ResponseWriter, r *http.Request) {
	mmsi, err := mmsiParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, end, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	res, err := p.db.Track(ctx, mmsi, start, end)
	if err != nil {
		serverError(w, "track", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) stats(w http.ResponseWriter, r *http.Request) {
	mmsi, err := mmsiParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start, end, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	res, err := p.db.VesselStats(ctx, mmsi, start, end)
	if err != nil {
		serverError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) recent(w http.ResponseWriter, r *http.Request) {
	limit := store.DEFAULT_RECENT_LIMIT
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MAX_RECENT {
			writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	res, err := p.db.RecentPositions(ctx, limit)
	if err != nil {
		serverError(w, "recent", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) overview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	res, err := p.db.Overview(ctx)
	if err != nil {
		serverError(w, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) qualityReport(w http.ResponseWriter, r *http.Request) {
	res := qualityResponse{}
	if p.quality != nil {
		res.Current = p.quality.Snapshot()
		res.ValidPercentage = ingest.ValidPercentage(res.Current)
	}

	ctx, cancel := context.WithTimeout(r.Context(), QUERY_TIMEOUT)
	defer cancel()

	saved, ok, err := p.db.LatestQuality(ctx)
	if err != nil {
		serverError(w, "quality", err)
		return
	}
	if ok {
		res.LastSaved = &saved
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) shipCount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.ships.Count())
}

func (p *Portal) shipHistory(w http.ResponseWriter, r *http.Request) {
	mmsi, err := mmsiParam(r)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	res, err := p.ships.GetShipHistory(mmsi)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (p *Portal) shipsBbox(w http.ResponseWriter, r *http.Request) {
	bbox, err := generateBbox(chi.URLParam(r, "sw"), chi.URLParam(r, "ne"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := p.ships.GetShipsInBox(bbox, p.geo)
	if errors.Is(err, tracker.ErrEmptyGeocache) {
		writeJSON(w, http.StatusOK, map[string]tracker.State{})
		return
	}
	if err != nil {
		serverError(w, "shipsBbox", err)
		return
	}

	// JSON object keys must be strings
	out := make(map[string]tracker.State, len(res))
	for mmsi, s := range res {
		out[strconv.FormatInt(mmsi, 10)] = s
	}
	writeJSON(w, http.StatusOK, out)
}

func mmsiParam(r *http.Request) (int64, error) {
	v := chi.URLParam(r, "mmsi")
	mmsi, err := strconv.ParseInt(v, 10, 64)
	if err != nil || mmsi <= 0 {
		return 0, errors.New("mmsi must be a positive integer")
	}
	return mmsi, nil
}

// timeRange parses the optional start and end query parameters as RFC 3339.
func timeRange(r *http.Request) (*time.Time, *time.Time, error) {
	parse := func(key string) (*time.Time, error) {
		v := r.URL.Query().Get(key)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.New(key + " must be an RFC 3339 timestamp")
		}
		return &t, nil
	}

	start, err := parse("start")
	if err != nil {
		return nil, nil, err
	}
	end, err := parse("end")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// generateBbox parses "lat,lng" corner strings into [sw, ne].
func generateBbox(swStr, neStr string) ([2][2]float64, error) {
	bbox := [2][2]float64{}

	sw := strings.Split(swStr, ",")
	ne := strings.Split(neStr, ",")
	if len(sw) != 2 || len(ne) != 2 {
		return bbox, errors.New("corners must be lat,lng pairs")
	}

	corners := [4]string{sw[0], sw[1], ne[0], ne[1]}
	for i, c := range corners {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return bbox, err
		}
		bbox[i/2][i%2] = v
	}
	return bbox, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("could not encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func serverError(w http.ResponseWriter, handler string, err error) {
	logging.Error().Err(err).Str("handler", handler).Msg("portal query failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
