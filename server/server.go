package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/schema"
)

// ============================================================================
// SERVER — HTTP boundary over the engine
// ============================================================================
// Datasets are loaded once and kept in an LRU cache. A dataset is an
// immutable snapshot: loading the same name again swaps in a new snapshot
// while in-flight requests keep reading the old one. Every request decodes
// its intent at the boundary and hands Values to the engine.
//
// Routes:
//   POST   /datasets/{name}               load rows (JSON array or YAML)
//   GET    /datasets/{name}               discovered schema
//   DELETE /datasets/{name}
//   POST   /datasets/{name}/perspective   one intent
//   POST   /datasets/{name}/perspectives  {"intents": [...]}, evaluated concurrently
//   POST   /datasets/{name}/filter        filter array or expression
//   POST   /datasets/{name}/unique        unique-values field list
//   GET    /metrics
// ============================================================================

// Config holds server settings.
type Config struct {
	CacheSize     int   // Datasets kept in memory. Default: 16
	MaxBodyBytes  int64 // Request body limit. Default: 64 MiB
	BatchLimit    int   // Concurrent intents per batch request. Default: 8
	MaxDepth      int   // Engine nesting limit. Default: engine.DefaultMaxDepth
	CaseSensitive bool  // Default string comparison mode for filters
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheSize:    16,
		MaxBodyBytes: 64 << 20,
		BatchLimit:   8,
		MaxDepth:     engine.DefaultMaxDepth,
	}
}

// Dataset is an immutable, loaded row collection.
type Dataset struct {
	Name     string
	Rows     []engine.Value
	View     *engine.SliceView
	Schema   *schema.Config
	LoadedAt time.Time
}

// Server serves perspectives over loaded datasets.
type Server struct {
	cfg      Config
	logger   log.Logger
	metrics  *engine.Metrics
	gatherer prometheus.Gatherer
	datasets *lru.Cache[string, *Dataset]
	router   *mux.Router

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New builds a server. Collectors are registered with reg.
func New(cfg Config, logger log.Logger, reg *prometheus.Registry) (*Server, error) {
	def := DefaultConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  engine.NewMetrics(reg),
		gatherer: reg,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "perspective",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "perspective",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	cache, err := lru.NewWithEvict[string, *Dataset](cfg.CacheSize, func(name string, _ *Dataset) {
		level.Info(s.logger).Log("msg", "dataset evicted", "dataset", name)
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating dataset cache")
	}
	s.datasets = cache
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/datasets/{name}", s.handleLoad).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc("/datasets/{name}", s.handleDescribe).Methods(http.MethodGet)
	r.HandleFunc("/datasets/{name}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/datasets/{name}/perspective", s.handlePerspective).Methods(http.MethodPost)
	r.HandleFunc("/datasets/{name}/perspectives", s.handleBatch).Methods(http.MethodPost)
	r.HandleFunc("/datasets/{name}/filter", s.handleFilter).Methods(http.MethodPost)
	r.HandleFunc("/datasets/{name}/unique", s.handleUnique).Methods(http.MethodPost)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Load stores rows under name as a new snapshot and discovers its schema.
func (s *Server) Load(name string, rows []engine.Value) *Dataset {
	ds := &Dataset{
		Name:     name,
		Rows:     rows,
		View:     engine.NewSliceView(rows),
		LoadedAt: time.Now().UTC(),
	}
	if len(rows) > 0 {
		cfg, err := schema.Discover(ds.View, schema.DiscoverOptions{
			SampleSize: schema.DefaultDiscoverOptions().SampleSize,
			Name:       name,
			Logger:     s.logger,
		})
		if err == nil {
			ds.Schema = cfg
		}
	}
	s.datasets.Add(name, ds)
	level.Info(s.logger).Log("msg", "dataset loaded", "dataset", name, "rows", len(rows))
	return ds
}

// Dataset returns the current snapshot for name.
func (s *Server) Dataset(name string) (*Dataset, bool) {
	return s.datasets.Get(name)
}

func (s *Server) engineOptions() []engine.Option {
	return []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
		engine.WithMaxDepth(s.cfg.MaxDepth),
		engine.WithCaseSensitive(s.cfg.CaseSensitive),
	}
}

// ============================================================================
// MIDDLEWARE
// ============================================================================

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		level.Debug(s.logger).Log("msg", "request", "method", r.Method, "route", route,
			"status", rec.code, "duration", time.Since(start))
	})
}
