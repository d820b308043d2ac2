package flipr

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joshp123/gohome-flipr/internal/host"
)

type fakeAPI struct {
	mu sync.Mutex

	authErr   error
	modules   []Module
	surveys   map[string]*Survey
	hubStates map[string]*HubState
	writeOK   bool

	surveyCalls int
	hubCalls    int
	manualCalls []bool
	modeCalls   []HubMode
}

func (f *fakeAPI) Authenticate(ctx context.Context, username, password string) error {
	return f.authErr
}

func (f *fakeAPI) Modules(ctx context.Context) ([]Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Module{}, f.modules...), nil
}

func (f *fakeAPI) LastSurvey(ctx context.Context, serial string) (*Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surveyCalls++
	return f.surveys[serial], nil
}

func (f *fakeAPI) HubState(ctx context.Context, serial string) (*HubState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hubCalls++
	return f.hubStates[serial], nil
}

func (f *fakeAPI) SetHubManualState(ctx context.Context, serial string, on bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manualCalls = append(f.manualCalls, on)
	return f.writeOK
}

func (f *fakeAPI) SetHubMode(ctx context.Context, serial string, mode HubMode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modeCalls = append(f.modeCalls, mode)
	return f.writeOK
}

func (f *fakeAPI) SurveyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surveyCalls
}

func (f *fakeAPI) HubCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hubCalls
}

func (f *fakeAPI) setWriteOK(ok bool) {
	f.mu.Lock()
	f.writeOK = ok
	f.mu.Unlock()
}

// fakeScheduler runs jobs only when Fire is called.
type fakeScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]func()
	spec map[int]string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[int]func()), spec: make(map[int]string)}
}

func (s *fakeScheduler) AddFunc(spec string, cmd func()) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.jobs[s.next] = cmd
	s.spec[s.next] = spec
	return s.next, nil
}

func (s *fakeScheduler) RemoveFunc(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.spec, id)
}

func (s *fakeScheduler) Fire() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	jobs := make([]func(), 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, s.jobs[id])
	}
	s.mu.Unlock()

	for _, job := range jobs {
		job()
	}
}

func (s *fakeScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *fakeScheduler) Specs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.spec))
	for _, spec := range s.spec {
		out = append(out, spec)
	}
	sort.Strings(out)
	return out
}

// updateLog records every characteristic update pushed through a bridge.
type updateLog struct {
	mu      sync.Mutex
	updates []host.Update
}

func (l *updateLog) record(u host.Update) {
	l.mu.Lock()
	l.updates = append(l.updates, u)
	l.mu.Unlock()
}

func (l *updateLog) All() []host.Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]host.Update(nil), l.updates...)
}

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func testModule(serial, commercialType string) Module {
	return Module{Serial: serial, CommercialType: CommercialType{Value: commercialType}}
}
