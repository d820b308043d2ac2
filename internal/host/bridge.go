package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/cache"
)

const cacheKey = "accessories"

var (
	ErrNotLaunched   = errors.New("bridge has not finished launching")
	ErrDuplicateUUID = errors.New("accessory uuid already registered")
	ErrUnknownUUID   = errors.New("accessory uuid not registered")
)

// uuidNamespace seeds GenerateUUID so the same serial always maps to the
// same accessory across restarts and installs.
var uuidNamespace = uuid.MustParse("4a0b6f2e-5a57-4e0c-9d47-0f6c1f1e7a10")

// GenerateUUID derives a stable accessory UUID from a seed such as a serial number.
func GenerateUUID(seed string) string {
	return uuid.NewSHA1(uuidNamespace, []byte(seed)).String()
}

// Platform is implemented by plugins that publish accessories through the bridge.
type Platform interface {
	PlatformName() string
	// ConfigureAccessory is called for every cached accessory owned by the
	// platform before DidFinishLaunching.
	ConfigureAccessory(acc *Accessory)
	DidFinishLaunching(ctx context.Context) error
	Shutdown()
}

// Runtime exposes the bridged accessories to controllers.
type Runtime interface {
	Serve(ctx context.Context, bridge *Bridge) error
}

// NopRuntime keeps accessories in memory only.
type NopRuntime struct{}

func (NopRuntime) Serve(ctx context.Context, _ *Bridge) error {
	<-ctx.Done()
	return nil
}

type cachedService struct {
	Kind    ServiceKind            `json:"kind"`
	Subtype string                 `json:"subtype"`
	Name    string                 `json:"name,omitempty"`
	Values  map[Characteristic]any `json:"values,omitempty"`
}

type cachedAccessory struct {
	Platform    string          `json:"platform"`
	UUID        string          `json:"uuid"`
	DisplayName string          `json:"display_name"`
	Info        Info            `json:"info"`
	Context     json.RawMessage `json:"context,omitempty"`
	Services    []cachedService `json:"services,omitempty"`
}

// Bridge owns the accessory set, its persistence and the launch lifecycle.
type Bridge struct {
	store cache.Store
	log   *zap.SugaredLogger

	mu          sync.RWMutex
	accessories map[string]*Accessory
	launched    bool
	observers   []func(Update)
}

func NewBridge(store cache.Store, log *zap.SugaredLogger) *Bridge {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Bridge{
		store:       store,
		log:         log,
		accessories: make(map[string]*Accessory),
	}
}

// NewAccessory creates an unregistered accessory.
func (b *Bridge) NewAccessory(name, id string) *Accessory {
	return newAccessory(name, id, b.notify)
}

// Observe registers fn for every characteristic update.
func (b *Bridge) Observe(fn func(Update)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

func (b *Bridge) notify(u Update) {
	b.mu.RLock()
	observers := slices.Clone(b.observers)
	b.mu.RUnlock()
	for _, fn := range observers {
		fn(u)
	}
}

// Launched reports whether the ready signal has fired.
func (b *Bridge) Launched() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.launched
}

// RegisterAccessories links new accessories to a platform and persists them.
func (b *Bridge) RegisterAccessories(ctx context.Context, platform string, accs ...*Accessory) error {
	b.mu.Lock()
	if !b.launched {
		b.mu.Unlock()
		return ErrNotLaunched
	}
	for _, acc := range accs {
		if _, ok := b.accessories[acc.UUID]; ok {
			b.mu.Unlock()
			return fmt.Errorf("%s: %w", acc.UUID, ErrDuplicateUUID)
		}
	}
	for _, acc := range accs {
		acc.attach(platform, b.notify)
		b.accessories[acc.UUID] = acc
	}
	b.mu.Unlock()

	for _, acc := range accs {
		b.log.Infow("registered accessory", "platform", platform, "name", acc.DisplayName, "uuid", acc.UUID)
	}
	return b.persist(ctx)
}

// UpdateAccessories persists changes made to already registered accessories.
func (b *Bridge) UpdateAccessories(ctx context.Context, accs ...*Accessory) error {
	b.mu.RLock()
	for _, acc := range accs {
		if _, ok := b.accessories[acc.UUID]; !ok {
			b.mu.RUnlock()
			return fmt.Errorf("%s: %w", acc.UUID, ErrUnknownUUID)
		}
	}
	b.mu.RUnlock()
	return b.persist(ctx)
}

// UnregisterAccessories removes accessories from the bridge and the cache.
func (b *Bridge) UnregisterAccessories(ctx context.Context, accs ...*Accessory) error {
	b.mu.Lock()
	for _, acc := range accs {
		delete(b.accessories, acc.UUID)
	}
	b.mu.Unlock()

	for _, acc := range accs {
		b.log.Infow("unregistered accessory", "name", acc.DisplayName, "uuid", acc.UUID)
	}
	return b.persist(ctx)
}

// Accessory returns a registered or restored accessory by UUID.
func (b *Bridge) Accessory(id string) (*Accessory, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accessories[id]
	return acc, ok
}

// Accessories returns every known accessory ordered by display name.
func (b *Bridge) Accessories() []*Accessory {
	b.mu.RLock()
	out := make([]*Accessory, 0, len(b.accessories))
	for _, acc := range b.accessories {
		out = append(out, acc)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].UUID < out[j].UUID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Run restores the cache, hands cached accessories to their platforms,
// fires the ready signal and serves the runtime until ctx is done.
func (b *Bridge) Run(ctx context.Context, runtime Runtime, platforms ...Platform) error {
	if runtime == nil {
		runtime = NopRuntime{}
	}

	byName := make(map[string]Platform, len(platforms))
	for _, p := range platforms {
		byName[p.PlatformName()] = p
	}

	restored, err := b.restore(ctx)
	if err != nil {
		b.log.Warnw("accessory cache unreadable, starting empty", "err", err)
	}
	for _, acc := range restored {
		p, ok := byName[acc.Platform()]
		if !ok {
			b.log.Infow("dropping cached accessory of unknown platform", "platform", acc.Platform(), "name", acc.DisplayName)
			continue
		}
		b.mu.Lock()
		b.accessories[acc.UUID] = acc
		b.mu.Unlock()
		p.ConfigureAccessory(acc)
	}

	b.mu.Lock()
	b.launched = true
	b.mu.Unlock()

	for _, p := range platforms {
		if err := p.DidFinishLaunching(ctx); err != nil {
			b.log.Errorw("platform failed to launch", "platform", p.PlatformName(), "err", err)
		}
	}
	if err := b.persist(ctx); err != nil {
		b.log.Warnw("persist accessory cache", "err", err)
	}

	serveErr := runtime.Serve(ctx, b)

	for _, p := range platforms {
		p.Shutdown()
	}
	if err := b.persist(context.WithoutCancel(ctx)); err != nil {
		b.log.Warnw("persist accessory cache", "err", err)
	}
	return serveErr
}

func (b *Bridge) restore(ctx context.Context) ([]*Accessory, error) {
	data, err := b.store.Load(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var cached []cachedAccessory
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("decode accessory cache: %w", err)
	}

	out := make([]*Accessory, 0, len(cached))
	for _, c := range cached {
		acc := newAccessory(c.DisplayName, c.UUID, b.notify)
		acc.platform = c.Platform
		acc.info = c.Info
		acc.context = c.Context
		for _, cs := range c.Services {
			acc.Service(cs.Kind, cs.Subtype, cs.Name).restore(cs.Values)
		}
		b.log.Infow("loading accessory from cache", "name", acc.DisplayName, "uuid", acc.UUID)
		out = append(out, acc)
	}
	return out, nil
}

func (b *Bridge) persist(ctx context.Context) error {
	accs := b.Accessories()
	cached := make([]cachedAccessory, 0, len(accs))
	for _, acc := range accs {
		entry := cachedAccessory{
			Platform:    acc.Platform(),
			UUID:        acc.UUID,
			DisplayName: acc.DisplayName,
			Info:        acc.Info(),
			Context:     acc.Context(),
		}
		for _, s := range acc.Services() {
			entry.Services = append(entry.Services, cachedService{
				Kind:    s.Kind,
				Subtype: s.Subtype,
				Name:    s.Name,
				Values:  s.Values(),
			})
		}
		cached = append(cached, entry)
	}

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accessory cache: %w", err)
	}
	if err := b.store.Save(ctx, cacheKey, data); err != nil {
		return fmt.Errorf("save accessory cache: %w", err)
	}
	return nil
}
