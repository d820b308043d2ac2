package flipr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/core"
	"github.com/joshp123/gohome-flipr/internal/history"
	"github.com/joshp123/gohome-flipr/internal/host"
	"github.com/joshp123/gohome-flipr/internal/scheduler"
)

// PlatformName identifies Flipr accessories in the bridge cache.
const PlatformName = "Flipr"

// API is the subset of the Flipr client the platform drives.
type API interface {
	Authenticate(ctx context.Context, username, password string) error
	Modules(ctx context.Context) ([]Module, error)
	surveyFetcher
	hubController
}

type accessoryContext struct {
	Module Module `json:"fliprModule"`
}

// Platform discovers modules and keeps one polling accessory per module.
type Platform struct {
	cfg       Config
	api       API
	bridge    *host.Bridge
	sched     scheduler.Scheduler
	snapshots *Snapshots
	history   history.Sink
	log       *zap.SugaredLogger

	mu            sync.Mutex
	cached        map[string]*host.Accessory
	readers       map[string]*ReaderAccessory
	hubs          map[string]*HubAccessory
	pollers       map[string]*Poller
	health        core.HealthStatus
	healthMessage string
}

func NewPlatform(cfg Config, api API, bridge *host.Bridge, sched scheduler.Scheduler, snapshots *Snapshots, sink history.Sink, log *zap.SugaredLogger) *Platform {
	return &Platform{
		cfg:       cfg,
		api:       api,
		bridge:    bridge,
		sched:     sched,
		snapshots: snapshots,
		history:   sink,
		log:       log,
		cached:    make(map[string]*host.Accessory),
		readers:   make(map[string]*ReaderAccessory),
		hubs:      make(map[string]*HubAccessory),
		pollers:   make(map[string]*Poller),
		health:    core.HealthHealthy,
	}
}

func (p *Platform) PlatformName() string {
	return PlatformName
}

// ConfigureAccessory keeps a cached accessory so discovery can reuse it.
func (p *Platform) ConfigureAccessory(acc *host.Accessory) {
	p.log.Infow("loading accessory from cache", "name", acc.DisplayName, "uuid", acc.UUID)

	p.mu.Lock()
	p.cached[acc.UUID] = acc
	p.mu.Unlock()
}

// DidFinishLaunching authenticates once and runs discovery. An
// authentication failure stops discovery for the life of the process.
func (p *Platform) DidFinishLaunching(ctx context.Context) error {
	if err := p.api.Authenticate(ctx, p.cfg.Username, p.cfg.Password); err != nil {
		p.setHealth(core.HealthError, err.Error())
		p.log.Errorw("flipr authentication failed, discovery halted", "err", err)
		return fmt.Errorf("authenticate: %w", err)
	}
	return p.Discover(ctx)
}

// Discover lists modules and sets up an accessory for each supported one.
func (p *Platform) Discover(ctx context.Context) error {
	modules, err := p.api.Modules(ctx)
	if err != nil {
		p.setHealth(core.HealthDegraded, err.Error())
		return fmt.Errorf("list modules: %w", err)
	}
	p.snapshots.SetModules(modules)

	if len(modules) == 0 {
		p.setHealth(core.HealthDegraded, "no modules returned")
		p.log.Infow("no flipr modules found")
		return nil
	}

	for _, m := range modules {
		if err := p.setup(ctx, m); err != nil {
			p.log.Errorw("accessory setup failed", "serial", m.Serial, "err", err)
		}
	}

	p.setHealth(core.HealthHealthy, "")
	return nil
}

func (p *Platform) setup(ctx context.Context, m Module) error {
	kind := Classify(m)
	if kind == KindUnknown {
		p.log.Infow("skipping module", "serial", m.Serial, "type", m.CommercialType.Value)
		return nil
	}

	p.mu.Lock()
	_, seen := p.pollers[m.Serial]
	id := host.GenerateUUID(m.Serial)
	acc, cached := p.cached[id]
	p.mu.Unlock()
	if seen {
		return nil
	}

	p.log.Infow("discovered module", "serial", m.Serial, "type", m.CommercialType.Value)

	name := p.cfg.displayName(m.Serial)
	if cached {
		p.log.Infow("restoring existing accessory from cache", "name", acc.DisplayName)
		acc.DisplayName = name
	} else {
		p.log.Infow("adding new accessory", "serial", m.Serial)
		acc = p.bridge.NewAccessory(name, id)
	}

	acc.SetInfo(host.Info{
		Manufacturer: "Flipr",
		Model:        m.CommercialType.Value,
		SerialNumber: m.Serial,
	})
	if err := acc.SetContext(accessoryContext{Module: m}); err != nil {
		return err
	}

	var cycle func(ctx context.Context)
	switch kind {
	case KindReader:
		reader := newReaderAccessory(m, acc, p.api, p.snapshots, p.history, p.log)
		cycle = func(ctx context.Context) { reader.FetchLastSurvey(ctx) }
		p.mu.Lock()
		p.readers[m.Serial] = reader
		p.mu.Unlock()
	case KindHub:
		hub := newHubAccessory(ctx, m, acc, p.api, p.snapshots, p.log)
		cycle = func(ctx context.Context) { hub.RefreshHubState(ctx) }
		p.mu.Lock()
		p.hubs[m.Serial] = hub
		p.mu.Unlock()
	}

	var err error
	if cached {
		err = p.bridge.UpdateAccessories(ctx, acc)
	} else {
		err = p.bridge.RegisterAccessories(ctx, PlatformName, acc)
	}
	if err != nil {
		return err
	}

	poller := NewPoller(m.Serial, p.cfg.interval(), p.sched, cycle, p.log)
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	p.mu.Lock()
	p.pollers[m.Serial] = poller
	p.mu.Unlock()
	return nil
}

// Shutdown stops every poller.
func (p *Platform) Shutdown() {
	p.mu.Lock()
	pollers := make([]*Poller, 0, len(p.pollers))
	for _, poller := range p.pollers {
		pollers = append(pollers, poller)
	}
	p.mu.Unlock()

	for _, poller := range pollers {
		poller.Stop()
	}
}

func (p *Platform) Hub(serial string) (*HubAccessory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hub, ok := p.hubs[serial]
	return hub, ok
}

func (p *Platform) Reader(serial string) (*ReaderAccessory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	reader, ok := p.readers[serial]
	return reader, ok
}

// Serials returns the serials with a running accessory.
func (p *Platform) Serials() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.pollers))
	for serial := range p.pollers {
		out = append(out, serial)
	}
	p.mu.Unlock()
	sort.Strings(out)
	return out
}

func (p *Platform) Health() (core.HealthStatus, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health, p.healthMessage
}

func (p *Platform) setHealth(status core.HealthStatus, msg string) {
	p.mu.Lock()
	p.health = status
	p.healthMessage = msg
	p.mu.Unlock()
}
