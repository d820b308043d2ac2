package core

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/scheduler"
)

// HealthStatus represents plugin health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by the plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a plugin for discovery and registry metadata.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
}

// Plugin is the compile-time contract for all plugins.
type Plugin interface {
	ID() string
	Manifest() Manifest
	AgentsMD() string
	Dashboards() []Dashboard
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows plugins to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(*mux.Router)
}

// AccessoryProvider is implemented by plugins that publish accessories
// through the bridge.
type AccessoryProvider interface {
	AccessoryPlatform() host.Platform
}

// Env carries the shared runtime services handed to plugin factories.
type Env struct {
	Bridge    *host.Bridge
	Scheduler scheduler.Scheduler
	History   history.Sink
	Log       *zap.SugaredLogger
}

// Platforms returns the accessory platforms of the given plugins.
func Platforms(plugins []Plugin) []host.Platform {
	var out []host.Platform
	for _, p := range plugins {
		if provider, ok := p.(AccessoryProvider); ok {
			if platform := provider.AccessoryPlatform(); platform != nil {
				out = append(out, platform)
			}
		}
	}
	return out
}
