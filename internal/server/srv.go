package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"
	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"

	"github.com/ddworken/analytics-ingest/internal/database"
)

// Store is the persistence the pipeline depends on. The same table serves as the data table and
// as the event log the rate limiter counts over.
type Store interface {
	CountAnalyticsRecordsFromOrigin(ctx context.Context, origin string, since time.Time) (int64, error)
	UpsertAnalyticsRecord(ctx context.Context, record *database.AnalyticsRecord) error
}

type Server struct {
	store   Store
	apiKey  string
	limiter *originLimiter
	logger  logrus.FieldLogger
	statsd  *statsd.Client
	now     func() time.Time

	isProductionEnvironment bool
	releaseVersion          string
	shutdownTimeout         time.Duration
}

type Option func(*Server)

func WithStatsd(statsd *statsd.Client) Option {
	return func(s *Server) {
		s.statsd = statsd
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithReleaseVersion(releaseVersion string) Option {
	return func(s *Server) {
		s.releaseVersion = releaseVersion
	}
}

// WithClock replaces time.Now for timestamps and the rate-limit window.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func IsProductionEnvironment(v bool) Option {
	return func(s *Server) {
		s.isProductionEnvironment = v
	}
}

// NewServer builds the ingestion server. apiKey is the credential every request must present;
// an empty apiKey rejects every request.
func NewServer(store Store, apiKey string, options ...Option) *Server {
	srv := Server{
		store:           store,
		apiKey:          apiKey,
		logger:          logrus.StandardLogger(),
		now:             time.Now,
		shutdownTimeout: 10 * time.Second,
	}
	for _, option := range options {
		option(&srv)
	}
	srv.limiter = newOriginLimiter(store, srv.now)
	return &srv
}

// Handler returns the ingestion endpoint. It answers on every path and method.
func (s *Server) Handler() http.Handler {
	return mergeMiddlewares(
		withPanicGuard(s.logger),
		withLogging(s.logger, s.statsd),
	)(http.HandlerFunc(s.apiIngestHandler))
}

// Run serves the ingestion endpoint on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := httptrace.NewServeMux()

	if s.isProductionEnvironment {
		defer configureObservability(s.releaseVersion, s.logger)()
	}
	mux.Handle("/", s.Handler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Infof("Listening on %s", addr)
	return s.serve(ctx, httpServer)
}

func (s *Server) serve(ctx context.Context, httpServer *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warnf("failed to shut down %s cleanly", httpServer.Addr)
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http.ListenAndServe: %w", err)
		}
	}

	return nil
}

func (s *Server) incr(name string, tags ...string) {
	if s.statsd != nil {
		s.statsd.Incr(name, tags, 1.0)
	}
}
