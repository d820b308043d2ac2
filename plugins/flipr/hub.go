package flipr

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/host"
)

type hubController interface {
	HubState(ctx context.Context, serial string) (*HubState, error)
	SetHubManualState(ctx context.Context, serial string, on bool) bool
	SetHubMode(ctx context.Context, serial string, mode HubMode) bool
}

type hubPhase int

const (
	hubUnknown hubPhase = iota
	hubConfirmed
	hubPendingWrite
)

// LocalHubState mirrors the hub. Values are only taken as Confirmed after
// the vendor acknowledged them.
type LocalHubState struct {
	phase hubPhase
	On    bool
	Mode  HubMode
}

func confirmedHubState(on bool, mode HubMode) LocalHubState {
	return LocalHubState{phase: hubConfirmed, On: on, Mode: mode}
}

func (s LocalHubState) Known() bool   { return s.phase == hubConfirmed }
func (s LocalHubState) Pending() bool { return s.phase == hubPendingWrite }

func (s LocalHubState) String() string {
	switch s.phase {
	case hubConfirmed:
		return fmt.Sprintf("confirmed(on=%t, mode=%s)", s.On, s.Mode)
	case hubPendingWrite:
		return "pending"
	default:
		return "unknown"
	}
}

// HubAccessory exposes a hub as a power switch and an automatic-mode switch.
type HubAccessory struct {
	module    Module
	client    hubController
	power     *host.Service
	auto      *host.Service
	snapshots *Snapshots
	log       *zap.SugaredLogger

	// writeMu serializes control writes from begin to commit or rollback.
	writeMu sync.Mutex

	mu    sync.Mutex
	state LocalHubState
}

func newHubAccessory(ctx context.Context, m Module, acc *host.Accessory, client hubController, snapshots *Snapshots, log *zap.SugaredLogger) *HubAccessory {
	acc.RemoveService(host.TemperatureSensor, subtypeWater)
	acc.RemoveService(host.LightSensor, subtypePH)

	h := &HubAccessory{
		module:    m,
		client:    client,
		power:     acc.Service(host.Switch, subtypePower, "Power"),
		auto:      acc.Service(host.Switch, subtypeAuto, "Automatic"),
		snapshots: snapshots,
		log:       log,
	}

	// Failed controller writes are logged and the characteristic is pushed back.
	h.power.OnSet(host.On, func(v any) bool {
		on, ok := v.(bool)
		if !ok {
			h.log.Warnw("ignoring non-boolean power write", "serial", m.Serial, "value", v)
			return false
		}
		return h.HandleHubSwitch(ctx, on)
	})
	h.auto.OnSet(host.On, func(v any) bool {
		on, ok := v.(bool)
		if !ok {
			h.log.Warnw("ignoring non-boolean mode write", "serial", m.Serial, "value", v)
			return false
		}
		mode := ModeManual
		if on {
			mode = ModeAuto
		}
		return h.HandleHubMode(ctx, mode)
	})
	return h
}

// State returns the local mirror.
func (h *HubAccessory) State() LocalHubState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// RefreshHubState polls the hub and confirms the reported state.
func (h *HubAccessory) RefreshHubState(ctx context.Context) bool {
	serial := h.module.Serial

	state, err := h.client.HubState(ctx, serial)
	if err != nil {
		h.log.Warnw("fetch hub state failed", "serial", serial, "err", err)
		h.snapshots.RecordPoll(serial, false)
		return false
	}
	if state == nil {
		h.log.Infow("no hub state available", "serial", serial)
		h.snapshots.RecordPoll(serial, false)
		return false
	}

	h.mu.Lock()
	if h.state.Pending() {
		h.mu.Unlock()
		h.log.Debugw("hub write in flight, ignoring poll", "serial", serial)
		return false
	}
	h.state = confirmedHubState(state.IsOn(), state.Behavior)
	next := h.state
	h.mu.Unlock()

	h.log.Infow("hub state", "serial", serial, "on", next.On, "mode", next.Mode)
	h.publish(next)
	h.snapshots.PutHub(serial, next.On, next.Mode)
	h.snapshots.RecordPoll(serial, true)
	return true
}

// HandleHubSwitch turns the equipment on or off. The local state changes
// only when the vendor accepted the write.
func (h *HubAccessory) HandleHubSwitch(ctx context.Context, on bool) bool {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	prev := h.begin()

	ok := h.client.SetHubManualState(ctx, h.module.Serial, on)
	if ok {
		h.commit(confirmedHubState(on, ModeManual))
		h.log.Infow("hub switched", "serial", h.module.Serial, "on", on)
		return true
	}

	h.log.Warnw("hub switch failed, keeping previous state", "serial", h.module.Serial, "requested", on, "state", prev)
	h.rollback(ctx, prev)
	return false
}

// HandleHubMode changes the hub behaviour under the same rules as HandleHubSwitch.
func (h *HubAccessory) HandleHubMode(ctx context.Context, mode HubMode) bool {
	if _, err := ParseHubMode(string(mode)); err != nil {
		h.log.Warnw("rejecting hub mode", "serial", h.module.Serial, "err", err)
		h.publish(h.State())
		return false
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	prev := h.begin()

	ok := h.client.SetHubMode(ctx, h.module.Serial, mode)
	if ok {
		h.commit(confirmedHubState(prev.On, mode))
		h.log.Infow("hub mode changed", "serial", h.module.Serial, "mode", mode)
		return true
	}

	h.log.Warnw("hub mode change failed, keeping previous state", "serial", h.module.Serial, "requested", mode, "state", prev)
	h.rollback(ctx, prev)
	return false
}

func (h *HubAccessory) begin() LocalHubState {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.state
	h.state = LocalHubState{phase: hubPendingWrite, On: prev.On, Mode: prev.Mode}
	return prev
}

func (h *HubAccessory) commit(next LocalHubState) {
	h.mu.Lock()
	h.state = next
	h.mu.Unlock()

	h.publish(next)
	h.snapshots.PutHub(h.module.Serial, next.On, next.Mode)
}

func (h *HubAccessory) rollback(ctx context.Context, prev LocalHubState) {
	h.mu.Lock()
	h.state = prev
	h.mu.Unlock()

	if prev.Known() {
		h.publish(prev)
		return
	}
	// Nothing confirmed yet to fall back to; ask the hub.
	h.RefreshHubState(ctx)
}

func (h *HubAccessory) publish(s LocalHubState) {
	if !s.Known() {
		return
	}
	h.power.UpdateCharacteristic(host.On, s.On)
	h.auto.UpdateCharacteristic(host.On, s.Mode != ModeManual)
}
