package health

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"storage-dashboard/goutils/metrics"
	"storage-dashboard/goutils/settings"
)

func HealthCheckHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func NewMux(config *settings.Healthcheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(config.Endpoint, HealthCheckHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

// HealthCheck starts a non-blocking listener serving the health endpoint and prometheus metrics.
func HealthCheck(config *settings.Healthcheck) {
	mux := NewMux(config)

	go func() {
		err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), mux)
		if err != nil {
			log.WithError(err).Fatal("failed to start health check http server")
		}
	}()

	log.WithField("port", config.Port).Info("started health check http server")
}
