package core

import (
	"sync"
)

// PluginSummary is the registry view of a plugin.
type PluginSummary struct {
	PluginID      string   `json:"plugin_id"`
	DisplayName   string   `json:"display_name"`
	Version       string   `json:"version"`
	Status        string   `json:"status"`
	HealthMessage string   `json:"health_message,omitempty"`
	Services      []string `json:"services,omitempty"`
	Dashboards    []string `json:"dashboards,omitempty"`
}

// PluginDescriptor adds the agent notes to a summary.
type PluginDescriptor struct {
	PluginSummary
	AgentsMD string `json:"agents_md"`
}

// Registry provides plugin discovery to clients.
type Registry struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewRegistry(plugins []Plugin) *Registry {
	return &Registry{plugins: plugins}
}

func (r *Registry) ListPlugins() []PluginSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PluginSummary, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, summarize(p))
	}
	return out
}

func (r *Registry) DescribePlugin(id string) (PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.ID() != id {
			continue
		}
		return PluginDescriptor{PluginSummary: summarize(p), AgentsMD: p.AgentsMD()}, true
	}
	return PluginDescriptor{}, false
}

// Plugins returns the registered plugins.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Plugin(nil), r.plugins...)
}

func summarize(p Plugin) PluginSummary {
	manifest := p.Manifest()
	summary := PluginSummary{
		PluginID:      manifest.PluginID,
		DisplayName:   manifest.DisplayName,
		Version:       manifest.Version,
		Status:        string(p.Health()),
		HealthMessage: p.HealthMessage(),
		Services:      manifest.Services,
	}
	for _, d := range p.Dashboards() {
		summary.Dashboards = append(summary.Dashboards, DashboardPath(manifest.PluginID, d.Name))
	}
	return summary
}
