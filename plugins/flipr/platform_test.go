package flipr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-flipr/internal/cache"
	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/logging"
)

// hookRuntime runs fn once the platforms have launched, then returns.
type hookRuntime struct {
	fn func(b *host.Bridge)
}

func (r hookRuntime) Serve(ctx context.Context, b *host.Bridge) error {
	if r.fn != nil {
		r.fn(b)
	}
	return nil
}

func newTestPlatform(api API, store cache.Store) (*Platform, *host.Bridge, *fakeScheduler) {
	bridge := host.NewBridge(store, logging.Nop())
	sched := newFakeScheduler()
	cfg := Config{Username: "pool@example.com", Password: "secret", PollInterval: time.Minute}
	p := NewPlatform(cfg, api, bridge, sched, NewSnapshots(time.Minute), history.Discard{}, logging.Nop())
	return p, bridge, sched
}

func TestPlatformReaderAndHub(t *testing.T) {
	api := &fakeAPI{
		modules: []Module{testModule("F1", TypeAnalysR), testModule("H1", TypeStart)},
		surveys: map[string]*Survey{"F1": {Temperature: 26, PH: Measure{Value: 7.4}}},
		hubStates: map[string]*HubState{
			"H1": {StateEquipment: 1, Behavior: ModeAuto},
		},
	}
	p, bridge, sched := newTestPlatform(api, nil)

	err := bridge.Run(context.Background(), hookRuntime{fn: func(b *host.Bridge) {
		require.Eventually(t, func() bool { return api.SurveyCalls() == 1 && api.HubCalls() == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 2, sched.Len())
		assert.Equal(t, []string{"F1", "H1"}, p.Serials())

		reader, ok := b.Accessory(host.GenerateUUID("F1"))
		require.True(t, ok)
		assert.Equal(t, PlatformName, reader.Platform())
		assert.Equal(t, "Flipr", reader.Info().Manufacturer)
		assert.Equal(t, TypeAnalysR, reader.Info().Model)

		hub, ok := b.Accessory(host.GenerateUUID("H1"))
		require.True(t, ok)
		for _, svc := range hub.Services() {
			assert.Equal(t, host.Switch, svc.Kind)
		}
	}}, p)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.Len(), "shutdown should stop every poller")

	status, _ := p.Health()
	assert.Equal(t, core.HealthHealthy, status)
}

func TestPlatformHubNeverFetchesSurvey(t *testing.T) {
	api := &fakeAPI{
		modules:   []Module{testModule("H1", TypeStart)},
		hubStates: map[string]*HubState{"H1": {StateEquipment: 0, Behavior: ModeManual}},
	}
	p, bridge, sched := newTestPlatform(api, nil)

	err := bridge.Run(context.Background(), hookRuntime{fn: func(b *host.Bridge) {
		require.Eventually(t, func() bool { return api.HubCalls() == 1 }, time.Second, 5*time.Millisecond)
		sched.Fire()

		acc, ok := b.Accessory(host.GenerateUUID("H1"))
		require.True(t, ok)
		_, ok = acc.LookupService(host.TemperatureSensor, subtypeWater)
		assert.False(t, ok)
		_, ok = acc.LookupService(host.LightSensor, subtypePH)
		assert.False(t, ok)
	}}, p)
	require.NoError(t, err)
	assert.Equal(t, 0, api.SurveyCalls())
}

func TestPlatformSkipsUnknownModules(t *testing.T) {
	api := &fakeAPI{modules: []Module{testModule("X1", "SomethingElse")}}
	p, bridge, sched := newTestPlatform(api, nil)

	require.NoError(t, bridge.Run(context.Background(), hookRuntime{}, p))

	assert.Empty(t, bridge.Accessories())
	assert.Empty(t, p.Serials())
	assert.Equal(t, 0, sched.Len())
	assert.Equal(t, 0, api.SurveyCalls())
	assert.Equal(t, 0, api.HubCalls())
}

func TestPlatformAuthFailureHaltsDiscovery(t *testing.T) {
	api := &fakeAPI{
		authErr: errors.New("flipr token exchange failed: 400 Bad Request: invalid_grant bad creds"),
		modules: []Module{testModule("F1", TypeAnalysR)},
	}
	p, bridge, _ := newTestPlatform(api, nil)

	require.NoError(t, bridge.Run(context.Background(), hookRuntime{}, p))

	assert.Empty(t, bridge.Accessories())
	status, msg := p.Health()
	assert.Equal(t, core.HealthError, status)
	assert.Contains(t, msg, "invalid_grant")
}

func TestPlatformNoModulesIsDegraded(t *testing.T) {
	p, bridge, _ := newTestPlatform(&fakeAPI{}, nil)

	require.NoError(t, bridge.Run(context.Background(), hookRuntime{}, p))

	status, _ := p.Health()
	assert.Equal(t, core.HealthDegraded, status)
}

func TestPlatformReusesCachedAccessory(t *testing.T) {
	store := cache.NewMemoryStore()
	api := &fakeAPI{modules: []Module{testModule("F1", TypeAnalysR)}}

	firstPlatform, first, _ := newTestPlatform(api, store)
	require.NoError(t, first.Run(context.Background(), hookRuntime{}, firstPlatform))

	p, second, _ := newTestPlatform(api, store)
	require.NoError(t, second.Run(context.Background(), hookRuntime{fn: func(b *host.Bridge) {
		accs := b.Accessories()
		require.Len(t, accs, 1)
		assert.Equal(t, host.GenerateUUID("F1"), accs[0].UUID)

		var ctx accessoryContext
		require.NoError(t, accs[0].DecodeContext(&ctx))
		assert.Equal(t, "F1", ctx.Module.Serial)
	}}, p))

	reader, ok := p.Reader("F1")
	require.True(t, ok)
	assert.NotNil(t, reader)
}

func TestPlatformNameOverride(t *testing.T) {
	api := &fakeAPI{modules: []Module{testModule("F1", TypeAnalysR)}}
	cfg, err := ConfigFromFile(config.FliprConfig{
		Username:      "pool@example.com",
		Password:      "secret",
		PollInterval:  "60s",
		NameOverrides: []config.NameOverride{{Match: "F*", Name: "Pool {serial}"}},
	})
	require.NoError(t, err)

	bridge := host.NewBridge(nil, logging.Nop())
	p := NewPlatform(cfg, api, bridge, newFakeScheduler(), NewSnapshots(time.Minute), history.Discard{}, logging.Nop())

	require.NoError(t, bridge.Run(context.Background(), hookRuntime{}, p))
	acc, ok := bridge.Accessory(host.GenerateUUID("F1"))
	require.True(t, ok)
	assert.Equal(t, "Pool F1", acc.DisplayName)
}
