package homekit

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/config"
	"github.com/joshp123/gohome-flipr/internal/host"
)

const bridgeID = 1

// Runtime serves bridged accessories over HomeKit Accessory Protocol.
type Runtime struct {
	cfg     config.HomeKitConfig
	version string
	log     *zap.SugaredLogger

	mu      sync.Mutex
	setters map[key]func(any)
}

type key struct {
	uuid           string
	subtype        string
	characteristic host.Characteristic
}

func New(cfg config.HomeKitConfig, version string, log *zap.SugaredLogger) *Runtime {
	return &Runtime{cfg: cfg, version: version, log: log, setters: make(map[key]func(any))}
}

func (r *Runtime) Serve(ctx context.Context, bridge *host.Bridge) error {
	root := accessory.NewBridge(accessory.Info{
		Name:         r.cfg.Name,
		SerialNumber: "gohome-flipr",
		Manufacturer: "gohome",
		Model:        "flipr-bridge",
		Firmware:     r.version,
	})
	root.A.Id = bridgeID

	accs := r.build(bridge.Accessories())
	bridge.Observe(r.apply)

	server, err := hap.NewServer(hap.NewFsStore(r.cfg.StoreDir), root.A, accs...)
	if err != nil {
		return fmt.Errorf("homekit server: %w", err)
	}
	server.Pin = r.cfg.Pin
	if r.cfg.Addr != "" {
		server.Addr = r.cfg.Addr
	}

	r.log.Infow("serving homekit bridge", "accessories", len(accs), "addr", server.Addr)
	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("homekit serve: %w", err)
	}
	return nil
}

func (r *Runtime) build(hostAccs []*host.Accessory) []*accessory.A {
	out := make([]*accessory.A, 0, len(hostAccs))
	for _, acc := range hostAccs {
		info := acc.Info()
		a := accessory.New(accessory.Info{
			Name:         acc.DisplayName,
			SerialNumber: info.SerialNumber,
			Manufacturer: info.Manufacturer,
			Model:        info.Model,
			Firmware:     info.FirmwareRevision,
		}, accessoryType(acc))
		a.Id = accessoryID(acc.UUID)

		for _, svc := range acc.Services() {
			s := r.service(acc.UUID, svc)
			if s == nil {
				r.log.Debugw("no homekit mapping for service", "kind", svc.Kind, "accessory", acc.DisplayName)
				continue
			}
			a.AddS(s)
		}
		out = append(out, a)
	}
	return out
}

func (r *Runtime) service(uuid string, svc *host.Service) *service.S {
	var s *service.S
	switch svc.Kind {
	case host.TemperatureSensor:
		ts := service.NewTemperatureSensor()
		if v, ok := floatValue(svc, host.CurrentTemperature); ok {
			ts.CurrentTemperature.SetValue(v)
		}
		r.register(uuid, svc.Subtype, host.CurrentTemperature, func(v any) {
			if f, ok := toFloat(v); ok {
				ts.CurrentTemperature.SetValue(f)
			}
		})
		s = ts.S
	case host.LightSensor:
		ls := service.NewLightSensor()
		if v, ok := floatValue(svc, host.CurrentAmbientLightLevel); ok {
			ls.CurrentAmbientLightLevel.SetValue(v)
		}
		r.register(uuid, svc.Subtype, host.CurrentAmbientLightLevel, func(v any) {
			if f, ok := toFloat(v); ok {
				ls.CurrentAmbientLightLevel.SetValue(f)
			}
		})
		s = ls.S
	case host.Switch:
		sw := service.NewSwitch()
		if v, ok := svc.Value(host.On); ok {
			if b, ok := v.(bool); ok {
				sw.On.SetValue(b)
			}
		}
		r.register(uuid, svc.Subtype, host.On, func(v any) {
			if b, ok := v.(bool); ok {
				sw.On.SetValue(b)
			}
		})
		sw.On.OnValueRemoteUpdate(func(on bool) {
			if err := svc.Set(host.On, on); err != nil {
				r.log.Warnw("homekit write rejected", "subtype", svc.Subtype, "err", err)
			}
		})
		s = sw.S
	default:
		return nil
	}

	if svc.Name != "" {
		name := characteristic.NewName()
		name.SetValue(svc.Name)
		s.AddC(name.C)
	}
	return s
}

func (r *Runtime) register(uuid, subtype string, c host.Characteristic, fn func(any)) {
	r.mu.Lock()
	r.setters[key{uuid: uuid, subtype: subtype, characteristic: c}] = fn
	r.mu.Unlock()
}

// apply mirrors host updates into the HAP characteristics. Remote updates
// already carry the controller's value.
func (r *Runtime) apply(u host.Update) {
	if u.Remote {
		return
	}
	r.mu.Lock()
	fn, ok := r.setters[key{uuid: u.AccessoryUUID, subtype: u.Subtype, characteristic: u.Characteristic}]
	r.mu.Unlock()
	if ok {
		fn(u.Value)
	}
}

func accessoryType(acc *host.Accessory) byte {
	for _, svc := range acc.Services() {
		if svc.Kind == host.Switch {
			return accessory.TypeSwitch
		}
	}
	return accessory.TypeSensor
}

// accessoryID maps a UUID to a stable HAP accessory id that never collides
// with the bridge itself.
func accessoryID(uuid string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(uuid))
	id := h.Sum64()
	if id <= bridgeID {
		id += bridgeID + 1
	}
	return id
}

func floatValue(svc *host.Service, c host.Characteristic) (float64, bool) {
	v, ok := svc.Value(c)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
