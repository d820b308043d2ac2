package flipr

import (
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	surveyPrefix = "survey:"
	hubPrefix    = "hub:"
)

// SurveySnapshot is the last successful reading of an analyser.
type SurveySnapshot struct {
	Serial string    `json:"serial"`
	Model  string    `json:"model"`
	Survey Survey    `json:"survey"`
	At     time.Time `json:"at"`
}

// HubSnapshot is the last confirmed state of a hub.
type HubSnapshot struct {
	Serial string    `json:"serial"`
	On     bool      `json:"on"`
	Mode   HubMode   `json:"mode"`
	At     time.Time `json:"at"`
}

// PollResult is the outcome of the most recent poll cycle of an accessory.
type PollResult struct {
	OK          bool
	LastSuccess time.Time
}

// Snapshots holds recent readings for metrics and the status API.
// Readings expire so a silent device drops out of scrapes.
type Snapshots struct {
	items *gocache.Cache

	mu      sync.RWMutex
	polls   map[string]PollResult
	modules map[string]string
}

func NewSnapshots(ttl time.Duration) *Snapshots {
	return &Snapshots{
		items:   gocache.New(ttl, 2*ttl),
		polls:   make(map[string]PollResult),
		modules: make(map[string]string),
	}
}

func (s *Snapshots) PutSurvey(serial, model string, survey Survey) {
	s.items.SetDefault(surveyPrefix+serial, SurveySnapshot{Serial: serial, Model: model, Survey: survey, At: time.Now()})
}

func (s *Snapshots) PutHub(serial string, on bool, mode HubMode) {
	s.items.SetDefault(hubPrefix+serial, HubSnapshot{Serial: serial, On: on, Mode: mode, At: time.Now()})
}

// Hub returns the unexpired snapshot of a hub.
func (s *Snapshots) Hub(serial string) (HubSnapshot, bool) {
	v, ok := s.items.Get(hubPrefix + serial)
	if !ok {
		return HubSnapshot{}, false
	}
	snap, ok := v.(HubSnapshot)
	return snap, ok
}

func (s *Snapshots) Surveys() []SurveySnapshot {
	var out []SurveySnapshot
	for key, item := range s.items.Items() {
		if !strings.HasPrefix(key, surveyPrefix) {
			continue
		}
		if snap, ok := item.Object.(SurveySnapshot); ok {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func (s *Snapshots) Hubs() []HubSnapshot {
	var out []HubSnapshot
	for key, item := range s.items.Items() {
		if !strings.HasPrefix(key, hubPrefix) {
			continue
		}
		if snap, ok := item.Object.(HubSnapshot); ok {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// RecordPoll stores the outcome of a poll cycle.
func (s *Snapshots) RecordPoll(serial string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.polls[serial]
	result.OK = ok
	if ok {
		result.LastSuccess = time.Now()
	}
	s.polls[serial] = result
}

func (s *Snapshots) Polls() map[string]PollResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]PollResult, len(s.polls))
	for k, v := range s.polls {
		out[k] = v
	}
	return out
}

// SetModules records the serial to commercial type mapping of the last listing.
func (s *Snapshots) SetModules(modules []Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = make(map[string]string, len(modules))
	for _, m := range modules {
		s.modules[m.Serial] = m.CommercialType.Value
	}
}

func (s *Snapshots) Modules() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.modules))
	for k, v := range s.modules {
		out[k] = v
	}
	return out
}
