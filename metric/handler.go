package metric

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promLogger adapts slog to promhttp's error logger.
type promLogger struct {
	logger *slog.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Error("Metrics exposition error", "detail", v)
}

// Handler serves every registered collector in the Prometheus exposition format.
// Each request gathers anew, so each sensor scrape is one registry snapshot.
func (r *MetricsRegistry) Handler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return promhttp.HandlerFor(
		r.prometheusRegistry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorLog:          promLogger{logger: logger},
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
