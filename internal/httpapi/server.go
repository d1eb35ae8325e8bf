package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/cel-labs/cel-translate/internal/config"
	"github.com/cel-labs/cel-translate/internal/content"
	"github.com/cel-labs/cel-translate/internal/jobs"
	"github.com/cel-labs/cel-translate/internal/observability"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type connectionTester interface {
	TestConnection(ctx context.Context) error
}

// documentStore is content.Store plus the listing needed by the documents
// API. Both the SQLite and the in-memory store satisfy it.
type documentStore interface {
	content.Store
	List(ctx context.Context) ([]*content.Document, error)
}

type Server struct {
	queue    *jobs.Queue
	docs     documentStore
	tester   connectionTester
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	cronExpr func() string

	metrics        *observability.Metrics
	metricsHandler http.Handler

	startedAt time.Time
	mux       *http.ServeMux
	server    *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithConnectionTester(tester connectionTester) Option {
	return func(s *Server) {
		s.tester = tester
	}
}

// WithCronExpr installs the tick schedule reported by the status endpoint.
// A function is taken rather than a value because the expression can change
// at runtime through the settings API.
func WithCronExpr(expr func() string) Option {
	return func(s *Server) {
		s.cronExpr = expr
	}
}

func WithMetrics(metrics *observability.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.metricsHandler = handler
	}
}

func NewServer(queue *jobs.Queue, docs documentStore, opts ...Option) *Server {
	s := &Server{
		queue:     queue,
		docs:      docs,
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		return s.mux
	}
	return s.instrument(s.mux)
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/translate", s.handleTranslate)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/clear", s.handleClearJobs)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/api/tick", s.handleTick)
	s.mux.HandleFunc("/api/test-connection", s.handleTestConnection)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/documents", s.handleDocuments)
	s.mux.HandleFunc("/api/documents/", s.handleDocumentByID)
	if s.metricsHandler != nil {
		s.mux.Handle("/metrics", s.metricsHandler)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start).Seconds())
	})
}
