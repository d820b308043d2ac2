package plugins

import (
	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/plugins/flipr"
)

func init() {
	Register(func(cfg *config.Config, env core.Env) (core.Plugin, bool) {
		return flipr.NewPlugin(cfg.Flipr, env), true
	})
}
