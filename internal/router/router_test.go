package router

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/gohome-flipr/internal/core"
)

type healthPlugin struct {
	status core.HealthStatus
}

func (p *healthPlugin) ID() string { return "flipr" }

func (p *healthPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "flipr", Services: []string{"gohome.plugins.flipr"}}
}

func (p *healthPlugin) AgentsMD() string                   { return "" }
func (p *healthPlugin) Dashboards() []core.Dashboard       { return nil }
func (p *healthPlugin) Collectors() []prometheus.Collector { return nil }
func (p *healthPlugin) Health() core.HealthStatus          { return p.status }
func (p *healthPlugin) HealthMessage() string              { return "" }

type manualScheduler struct {
	jobs []func()
}

func (s *manualScheduler) AddFunc(spec string, cmd func()) (int, error) {
	s.jobs = append(s.jobs, cmd)
	return len(s.jobs), nil
}

func (s *manualScheduler) RemoveFunc(int) {}

func check(t *testing.T, hs *health.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthSync(t *testing.T) {
	plugin := &healthPlugin{status: core.HealthDegraded}
	plugins := []core.Plugin{plugin}

	hs := health.NewServer()
	SyncHealth(hs, plugins)
	if got := check(t, hs, "gohome.plugins.flipr"); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("degraded plugin should serve, got %s", got)
	}

	sched := &manualScheduler{}
	if _, err := ScheduleHealthSync(sched, "@every 30s", hs, plugins); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	plugin.status = core.HealthError
	sched.jobs[0]()

	if got := check(t, hs, "flipr"); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", got)
	}
	if got := check(t, hs, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected overall NOT_SERVING, got %s", got)
	}
}
