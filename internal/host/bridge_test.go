package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-flipr/internal/cache"
	"github.com/joshp123/gohome-flipr/internal/logging"
)

type fakePlatform struct {
	name       string
	configured []*Accessory
	launch     func(ctx context.Context) error
	shutdown   bool
}

func (p *fakePlatform) PlatformName() string { return p.name }

func (p *fakePlatform) ConfigureAccessory(acc *Accessory) {
	p.configured = append(p.configured, acc)
}

func (p *fakePlatform) DidFinishLaunching(ctx context.Context) error {
	if p.launch != nil {
		return p.launch(ctx)
	}
	return nil
}

func (p *fakePlatform) Shutdown() { p.shutdown = true }

type doneRuntime struct{}

func (doneRuntime) Serve(context.Context, *Bridge) error { return nil }

func TestGenerateUUIDStable(t *testing.T) {
	a := GenerateUUID("F123")
	b := GenerateUUID("F123")
	c := GenerateUUID("F124")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestRegisterBeforeLaunchFails(t *testing.T) {
	b := NewBridge(cache.NewMemoryStore(), logging.Nop())
	acc := b.NewAccessory("pool", GenerateUUID("F1"))

	err := b.RegisterAccessories(context.Background(), "flipr", acc)
	assert.ErrorIs(t, err, ErrNotLaunched)
}

func TestRunRestoresCacheAndRegisters(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()

	first := NewBridge(store, logging.Nop())
	platform := &fakePlatform{name: "flipr"}
	platform.launch = func(ctx context.Context) error {
		acc := first.NewAccessory("F1", GenerateUUID("F1"))
		acc.SetInfo(Info{Manufacturer: "Flipr", SerialNumber: "F1"})
		require.NoError(t, acc.SetContext(map[string]string{"serial": "F1"}))
		acc.Service(TemperatureSensor, "water", "Water").UpdateCharacteristic(CurrentTemperature, 24.5)
		return first.RegisterAccessories(ctx, "flipr", acc)
	}
	require.NoError(t, first.Run(ctx, doneRuntime{}, platform))
	assert.True(t, platform.shutdown)

	second := NewBridge(store, logging.Nop())
	restoredPlatform := &fakePlatform{name: "flipr"}
	other := &fakePlatform{name: "other"}
	require.NoError(t, second.Run(ctx, doneRuntime{}, restoredPlatform, other))

	require.Len(t, restoredPlatform.configured, 1)
	assert.Empty(t, other.configured)

	acc := restoredPlatform.configured[0]
	assert.Equal(t, GenerateUUID("F1"), acc.UUID)
	assert.Equal(t, "F1", acc.Info().SerialNumber)

	var decoded map[string]string
	require.NoError(t, acc.DecodeContext(&decoded))
	assert.Equal(t, "F1", decoded["serial"])

	svc, ok := acc.LookupService(TemperatureSensor, "water")
	require.True(t, ok)
	v, ok := svc.Value(CurrentTemperature)
	require.True(t, ok)
	assert.Equal(t, 24.5, v)

	err := second.RegisterAccessories(ctx, "flipr", second.NewAccessory("dup", acc.UUID))
	assert.True(t, errors.Is(err, ErrDuplicateUUID))
}

func TestLaunchErrorDoesNotStopRun(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	failing := &fakePlatform{name: "flipr", launch: func(context.Context) error { return errors.New("auth failed") }}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, b.Run(ctx, NopRuntime{}, failing))
	assert.True(t, b.Launched())
	assert.True(t, failing.shutdown)
}

func TestObserveAndSet(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	acc := b.NewAccessory("hub", GenerateUUID("H1"))
	acc.SetInfo(Info{SerialNumber: "H1"})
	sw := acc.Service(Switch, "power", "Power")

	var mu sync.Mutex
	var updates []Update
	b.Observe(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	assert.ErrorIs(t, sw.Set(On, true), ErrReadOnly)

	var got any
	sw.OnSet(On, func(v any) bool {
		got = v
		return true
	})
	require.NoError(t, sw.Set(On, true))
	assert.Equal(t, true, got)
	assert.True(t, sw.Writable(On))

	sw.UpdateCharacteristic(On, false)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	assert.True(t, updates[0].Remote)
	assert.Equal(t, "H1", updates[0].SerialNumber)
	assert.Equal(t, "power", updates[1].Subtype)
	assert.Equal(t, false, updates[1].Value)
}

func TestObserveFansOutToEveryObserver(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	acc := b.NewAccessory("reader", GenerateUUID("R1"))
	temp := acc.Service(TemperatureSensor, "water", "Water")

	var first, second []any
	b.Observe(func(u Update) { first = append(first, u.Value) })
	b.Observe(func(u Update) { second = append(second, u.Value) })

	temp.UpdateCharacteristic(CurrentTemperature, 24.5)

	assert.Equal(t, []any{24.5}, first)
	assert.Equal(t, []any{24.5}, second)
}

func TestRejectedSetRestoresPreviousValue(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	acc := b.NewAccessory("hub", GenerateUUID("H1"))
	sw := acc.Service(Switch, "power", "Power")
	sw.OnSet(On, func(any) bool { return false })

	var updates []Update
	b.Observe(func(u Update) { updates = append(updates, u) })

	require.NoError(t, sw.Set(On, true))
	v, ok := sw.Value(On)
	require.True(t, ok)
	assert.Equal(t, false, v, "unknown switch should fall back to off")

	sw.UpdateCharacteristic(On, true)
	require.NoError(t, sw.Set(On, false))
	v, _ = sw.Value(On)
	assert.Equal(t, true, v)

	require.Len(t, updates, 5)
	assert.True(t, updates[0].Remote)
	assert.False(t, updates[1].Remote)
	assert.Equal(t, false, updates[1].Value)
	assert.Equal(t, true, updates[4].Value)
}

func TestRejectedSetKeepsNewerDeviceValue(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	acc := b.NewAccessory("hub", GenerateUUID("H1"))
	sw := acc.Service(Switch, "power", "Power")
	sw.OnSet(On, func(any) bool {
		sw.UpdateCharacteristic(On, true)
		return false
	})

	require.NoError(t, sw.Set(On, false))
	v, _ := sw.Value(On)
	assert.Equal(t, true, v)
}

func TestServiceGetOrAdd(t *testing.T) {
	b := NewBridge(nil, logging.Nop())
	acc := b.NewAccessory("reader", GenerateUUID("R1"))

	s1 := acc.Service(LightSensor, "ph", "pH")
	s2 := acc.Service(LightSensor, "ph", "")
	assert.Same(t, s1, s2)
	assert.Len(t, acc.Services(), 1)

	assert.True(t, acc.RemoveService(LightSensor, "ph"))
	assert.False(t, acc.RemoveService(LightSensor, "ph"))
	assert.Empty(t, acc.Services())
}
