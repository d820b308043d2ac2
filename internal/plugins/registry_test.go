package plugins

import (
	"testing"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/logging"
	"github.com/joshp123/gohome-flipr/internal/scheduler"
)

func TestCompiledIncludesFlipr(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Flipr.Username = "pool@example.com"
	cfg.Flipr.Password = "secret"

	sched := scheduler.NewCron()
	defer sched.Stop()

	plugins := Compiled(cfg, core.Env{
		Bridge:    host.NewBridge(nil, logging.Nop()),
		Scheduler: sched,
		Log:       logging.Nop(),
	})
	if len(plugins) != 1 || plugins[0].ID() != "flipr" {
		t.Fatalf("unexpected plugins: %v", plugins)
	}
	if err := core.ValidatePlugins(plugins); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(core.Platforms(plugins)) != 1 {
		t.Fatalf("expected flipr to provide an accessory platform")
	}
	if got := Compiled(nil, core.Env{}); got != nil {
		t.Fatalf("nil config should yield no plugins, got %v", got)
	}
}
