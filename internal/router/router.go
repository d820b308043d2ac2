package router

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/scheduler"
)

// RegisterPlugins registers the health service on the gRPC server, with one
// service name per plugin service, and seeds it from current plugin health.
func RegisterPlugins(server *grpc.Server, plugins []core.Plugin) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	SyncHealth(hs, plugins)
	return hs
}

// SyncHealth pushes plugin health to the health server. A plugin in error
// is NOT_SERVING; healthy and degraded plugins are SERVING. The overall
// status is NOT_SERVING when any plugin is in error.
func SyncHealth(hs *health.Server, plugins []core.Plugin) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, p := range plugins {
		status := servingStatus(p.Health())
		if status != healthpb.HealthCheckResponse_SERVING {
			overall = status
		}
		hs.SetServingStatus(p.ID(), status)
		for _, svc := range p.Manifest().Services {
			hs.SetServingStatus(svc, status)
		}
	}
	hs.SetServingStatus("", overall)
}

// ScheduleHealthSync re-syncs plugin health on every tick of spec.
func ScheduleHealthSync(sched scheduler.Scheduler, spec string, hs *health.Server, plugins []core.Plugin) (int, error) {
	return sched.AddFunc(spec, func() { SyncHealth(hs, plugins) })
}

func servingStatus(status core.HealthStatus) healthpb.HealthCheckResponse_ServingStatus {
	if status == core.HealthError {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
