package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ServiceKind names the accessory service types the bridge can expose.
type ServiceKind string

const (
	TemperatureSensor ServiceKind = "temperature_sensor"
	LightSensor       ServiceKind = "light_sensor"
	Switch            ServiceKind = "switch"
)

// Characteristic names a value on a service.
type Characteristic string

const (
	CurrentTemperature       Characteristic = "current_temperature"
	CurrentAmbientLightLevel Characteristic = "current_ambient_light_level"
	On                       Characteristic = "on"
)

var ErrReadOnly = errors.New("characteristic is read-only")

// Info is the accessory information block shown to controllers.
type Info struct {
	Manufacturer     string `json:"manufacturer,omitempty"`
	Model            string `json:"model,omitempty"`
	SerialNumber     string `json:"serial_number,omitempty"`
	FirmwareRevision string `json:"firmware_revision,omitempty"`
}

// Update is emitted whenever a characteristic value changes.
type Update struct {
	AccessoryUUID  string
	SerialNumber   string
	Kind           ServiceKind
	Subtype        string
	Characteristic Characteristic
	Value          any
	Remote         bool
}

// SetHandler receives writes coming from a controller and reports whether
// the device accepted them.
type SetHandler func(value any) bool

// Accessory is a bridged device. Services are keyed by kind and subtype.
type Accessory struct {
	UUID        string
	DisplayName string

	mu       sync.RWMutex
	platform string
	info     Info
	context  json.RawMessage
	services []*Service
	notify   func(Update)
}

func newAccessory(name, uuid string, notify func(Update)) *Accessory {
	return &Accessory{UUID: uuid, DisplayName: name, notify: notify}
}

// Platform returns the name of the platform owning the accessory.
func (a *Accessory) Platform() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.platform
}

func (a *Accessory) Info() Info {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

func (a *Accessory) SetInfo(info Info) {
	a.mu.Lock()
	a.info = info
	a.mu.Unlock()
}

// Context returns the opaque per-accessory payload persisted in the cache.
func (a *Accessory) Context() json.RawMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append(json.RawMessage(nil), a.context...)
}

func (a *Accessory) SetContext(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode accessory context: %w", err)
	}
	a.mu.Lock()
	a.context = data
	a.mu.Unlock()
	return nil
}

// DecodeContext unmarshals the accessory context into v.
func (a *Accessory) DecodeContext(v any) error {
	raw := a.Context()
	if len(raw) == 0 {
		return fmt.Errorf("accessory %s has no context", a.UUID)
	}
	return json.Unmarshal(raw, v)
}

// Service returns the service with the given kind and subtype, adding it
// when absent.
func (a *Accessory) Service(kind ServiceKind, subtype, name string) *Service {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.services {
		if s.Kind == kind && s.Subtype == subtype {
			if name != "" {
				s.Name = name
			}
			return s
		}
	}
	s := &Service{
		Kind:    kind,
		Subtype: subtype,
		Name:    name,
		acc:     a,
		values:  make(map[Characteristic]any),
		revs:    make(map[Characteristic]uint64),
		setters: make(map[Characteristic]SetHandler),
	}
	a.services = append(a.services, s)
	return s
}

// LookupService returns an existing service without creating one.
func (a *Accessory) LookupService(kind ServiceKind, subtype string) (*Service, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.services {
		if s.Kind == kind && s.Subtype == subtype {
			return s, true
		}
	}
	return nil, false
}

func (a *Accessory) Services() []*Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Service(nil), a.services...)
}

// RemoveService drops a service. It reports whether one was removed.
func (a *Accessory) RemoveService(kind ServiceKind, subtype string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.services {
		if s.Kind == kind && s.Subtype == subtype {
			a.services = append(a.services[:i], a.services[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Accessory) emit(u Update) {
	a.mu.RLock()
	notify := a.notify
	u.AccessoryUUID = a.UUID
	u.SerialNumber = a.info.SerialNumber
	a.mu.RUnlock()
	if notify != nil {
		notify(u)
	}
}

func (a *Accessory) attach(platform string, notify func(Update)) {
	a.mu.Lock()
	a.platform = platform
	a.notify = notify
	a.mu.Unlock()
}

// Service is a group of characteristics on an accessory.
type Service struct {
	Kind    ServiceKind
	Subtype string
	Name    string

	acc     *Accessory
	mu      sync.RWMutex
	values  map[Characteristic]any
	revs    map[Characteristic]uint64
	setters map[Characteristic]SetHandler
}

// UpdateCharacteristic records a value reported by the device and pushes
// it to observers.
func (s *Service) UpdateCharacteristic(c Characteristic, value any) {
	s.mu.Lock()
	s.values[c] = value
	s.revs[c]++
	s.mu.Unlock()
	s.acc.emit(Update{Kind: s.Kind, Subtype: s.Subtype, Characteristic: c, Value: value})
}

// Value returns the last known value of a characteristic.
func (s *Service) Value(c Characteristic) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[c]
	return v, ok
}

// Values returns a copy of every known characteristic value.
func (s *Service) Values() map[Characteristic]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Characteristic]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// OnSet registers the handler for controller writes to c.
func (s *Service) OnSet(c Characteristic, fn SetHandler) {
	s.mu.Lock()
	s.setters[c] = fn
	s.mu.Unlock()
}

// Writable reports whether c accepts controller writes.
func (s *Service) Writable(c Characteristic) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.setters[c]
	return ok
}

// Set applies a controller write: the value is stored, observers are
// notified and the registered handler runs synchronously. When the handler
// rejects the write and nothing else updated the characteristic meanwhile,
// the previous value is put back and announced. A characteristic that had
// no value falls back to the zero value of the written type.
func (s *Service) Set(c Characteristic, value any) error {
	s.mu.Lock()
	fn, ok := s.setters[c]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s %s: %w", s.Kind, s.Subtype, c, ErrReadOnly)
	}
	prev, hadPrev := s.values[c]
	s.values[c] = value
	s.revs[c]++
	rev := s.revs[c]
	s.mu.Unlock()

	s.acc.emit(Update{Kind: s.Kind, Subtype: s.Subtype, Characteristic: c, Value: value, Remote: true})
	if fn(value) {
		return nil
	}

	s.mu.Lock()
	if s.revs[c] != rev {
		s.mu.Unlock()
		return nil
	}
	if !hadPrev {
		prev = zeroOf(value)
	}
	s.values[c] = prev
	s.revs[c]++
	s.mu.Unlock()

	s.acc.emit(Update{Kind: s.Kind, Subtype: s.Subtype, Characteristic: c, Value: prev})
	return nil
}

func zeroOf(v any) any {
	if v == nil {
		return nil
	}
	return reflect.Zero(reflect.TypeOf(v)).Interface()
}

func (s *Service) restore(values map[Characteristic]any) {
	s.mu.Lock()
	for k, v := range values {
		s.values[k] = v
	}
	s.mu.Unlock()
}
