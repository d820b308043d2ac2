package flipr

import (
	_ "embed"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/host"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

var _ core.AccessoryProvider = (*Plugin)(nil)

// Plugin implements the GoHome plugin contract.
type Plugin struct {
	client    *Client
	platform  *Platform
	snapshots *Snapshots

	health        core.HealthStatus
	healthMessage string
}

// NewPlugin constructs the Flipr plugin. Configuration errors are reported
// through Health rather than failing startup.
func NewPlugin(cfg config.FliprConfig, env core.Env) *Plugin {
	log := env.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("flipr")

	pluginCfg, err := ConfigFromFile(cfg)
	if err != nil {
		return &Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	client, err := NewClient(pluginCfg, log)
	if err != nil {
		return &Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	sink := env.History
	if sink == nil {
		sink = history.Discard{}
	}

	snapshots := NewSnapshots(3 * pluginCfg.interval())
	platform := NewPlatform(pluginCfg, client, env.Bridge, env.Scheduler, snapshots, sink, log)

	return &Plugin{
		client:    client,
		platform:  platform,
		snapshots: snapshots,
		health:    core.HealthHealthy,
	}
}

func (p *Plugin) ID() string {
	return "flipr"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "flipr",
		DisplayName: "Flipr",
		Version:     "0.1.0",
		Services:    []string{"gohome.plugins.flipr"},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "flipr-overview", JSON: dashboardJSON}}
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.snapshots == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.snapshots)}
}

func (p *Plugin) AccessoryPlatform() host.Platform {
	if p.platform == nil {
		return nil
	}
	return p.platform
}

func (p *Plugin) Health() core.HealthStatus {
	if p.platform == nil {
		return p.health
	}
	status, _ := p.platform.Health()
	return status
}

func (p *Plugin) HealthMessage() string {
	if p.platform == nil {
		return p.healthMessage
	}
	_, msg := p.platform.Health()
	return msg
}
