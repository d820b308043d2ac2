package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/joshp123/gohome-flipr/internal/core"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// PluginsHandler lists registered plugins with their health.
func PluginsHandler(registry *core.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, registry.ListPlugins())
	}
}

// PluginHandler describes one plugin, including its agent notes.
func PluginHandler(registry *core.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		desc, ok := registry.DescribePlugin(id)
		if !ok {
			http.Error(w, "plugin not found: "+id, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, desc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
