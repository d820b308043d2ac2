package server

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gohome-flipr/internal/core"
)

// NewRouter wires the core endpoints and every plugin that registers HTTP
// routes. Requests are logged in combined log format to accessLog when set.
func NewRouter(registry *core.Registry, metrics *prometheus.Registry, accessLog io.Writer) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", MetricsHandler(metrics)).Methods(http.MethodGet)
	r.PathPrefix("/dashboards/").Handler(DashboardsHandler(core.DashboardsMap(registry.Plugins()))).Methods(http.MethodGet)
	r.HandleFunc("/api/plugins", PluginsHandler(registry)).Methods(http.MethodGet)
	r.HandleFunc("/api/plugins/{id}", PluginHandler(registry)).Methods(http.MethodGet)

	for _, p := range registry.Plugins() {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(r)
		}
	}

	if accessLog == nil {
		return r
	}
	return handlers.CombinedLoggingHandler(accessLog, r)
}
