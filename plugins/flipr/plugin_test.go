package flipr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/logging"
)

func TestNewPluginMissingCredentials(t *testing.T) {
	p := NewPlugin(config.FliprConfig{PollInterval: "60s"}, core.Env{Log: logging.Nop()})

	assert.Equal(t, core.HealthError, p.Health())
	assert.Contains(t, p.HealthMessage(), "username and password")
	assert.Nil(t, p.AccessoryPlatform())
	assert.Nil(t, p.Collectors())
	require.NoError(t, core.ValidatePlugins([]core.Plugin{p}))
}

func TestNewPlugin(t *testing.T) {
	p := NewPlugin(config.FliprConfig{
		Username:     "pool@example.com",
		Password:     "secret",
		PollInterval: "30s",
	}, core.Env{
		Bridge:    host.NewBridge(nil, logging.Nop()),
		Scheduler: newFakeScheduler(),
	})

	assert.Equal(t, core.HealthHealthy, p.Health())
	require.NotNil(t, p.AccessoryPlatform())
	assert.Equal(t, PlatformName, p.AccessoryPlatform().PlatformName())
	assert.Len(t, p.Collectors(), 1)
	assert.NotEmpty(t, p.AgentsMD())
	require.Len(t, p.Dashboards(), 1)
	assert.Contains(t, string(p.Dashboards()[0].JSON), "gohome_flipr_ph")
	assert.Len(t, core.Platforms([]core.Plugin{p}), 1)
}

func TestDisplayName(t *testing.T) {
	cfg, err := ConfigFromFile(config.FliprConfig{
		Username:     "pool@example.com",
		Password:     "secret",
		PollInterval: "60s",
		NameOverrides: []config.NameOverride{
			{Match: "F1*", Name: "Pool analyser"},
			{Match: "H*", Name: "Hub {serial}"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Pool analyser", cfg.displayName("F1ABC"))
	assert.Equal(t, "Hub H7", cfg.displayName("H7"))
	assert.Equal(t, "Z9", cfg.displayName("Z9"))
	assert.Equal(t, defaultPollInterval, Config{}.interval())
}

func TestConfigFromFileRejectsBadPattern(t *testing.T) {
	_, err := ConfigFromFile(config.FliprConfig{
		Username:      "pool@example.com",
		Password:      "secret",
		PollInterval:  "60s",
		NameOverrides: []config.NameOverride{{Match: "[", Name: "broken"}},
	})
	assert.Error(t, err)
}
