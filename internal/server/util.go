package server

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"

	"github.com/ddworken/analytics-ingest/internal/database"
)

const datadogSocket = "/var/run/datadog/apm.socket"

// configureObservability starts the profiler and tracer and returns a func that stops both.
func configureObservability(releaseVersion string, logger logrus.FieldLogger) func() {
	err := profiler.Start(
		profiler.WithService(database.ServiceName),
		profiler.WithVersion(releaseVersion),
		profiler.WithAPIKey(os.Getenv("DD_API_KEY")),
		profiler.WithUDS(datadogSocket),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to start DataDog profiler")
	}
	tracer.Start(
		tracer.WithRuntimeMetrics(),
		tracer.WithService(database.ServiceName),
		tracer.WithServiceVersion(releaseVersion),
		tracer.WithUDS(datadogSocket),
	)

	return func() {
		profiler.Stop()
		tracer.Stop()
	}
}
