package server

import (
	"context"
	"net/http"
	pprofhttp "net/http/pprof"

	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
)

type Pinger interface {
	Ping() error
}

func (s *Server) healthCheckHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			requestLogger(r.Context(), s.logger).WithError(err).Error("health check failed to ping DB")
			http.Error(w, "DB unreachable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}
}

// DebugHandler serves the health check and pprof. It must not share a listener with the
// ingestion endpoint, which answers every path.
func (s *Server) DebugHandler(db Pinger) http.Handler {
	mux := httptrace.NewServeMux()
	mux.Handle("/healthcheck", withLogging(s.logger, s.statsd)(s.healthCheckHandler(db)))
	mux.HandleFunc("/debug/pprof/", pprofhttp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)
	return mux
}

// RunDebug serves DebugHandler on addr until ctx is cancelled.
func (s *Server) RunDebug(ctx context.Context, addr string, db Pinger) error {
	s.logger.Infof("Debug endpoints listening on %s", addr)
	return s.serve(ctx, &http.Server{
		Addr:    addr,
		Handler: s.DebugHandler(db),
	})
}
