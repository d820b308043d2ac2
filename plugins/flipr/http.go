package flipr

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/joshp123/gohome-flipr/internal/core"
)

var _ core.HTTPRegistrant = (*Plugin)(nil)

type moduleStatus struct {
	Serial  string          `json:"serial"`
	Type    string          `json:"type"`
	Kind    string          `json:"kind"`
	Polling bool            `json:"polling"`
	PollOK  bool            `json:"poll_ok"`
	Survey  *SurveySnapshot `json:"survey,omitempty"`
	Hub     *HubSnapshot    `json:"hub,omitempty"`
}

const apiPrefix = "/api/flipr"

// RegisterHTTP mounts the Flipr routes on the root router so a method
// mismatch answers 405.
func (p *Plugin) RegisterHTTP(r *mux.Router) {
	r.HandleFunc(apiPrefix+"/modules", p.handleModules).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/hubs/{serial}/power/{state}", p.handleHubPower).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/hubs/{serial}/mode/{mode}", p.handleHubMode).Methods(http.MethodPost)
}

func (p *Plugin) handleModules(w http.ResponseWriter, r *http.Request) {
	if p.platform == nil {
		http.Error(w, "flipr unavailable", http.StatusServiceUnavailable)
		return
	}

	surveys := make(map[string]SurveySnapshot)
	for _, s := range p.snapshots.Surveys() {
		surveys[s.Serial] = s
	}
	hubs := make(map[string]HubSnapshot)
	for _, h := range p.snapshots.Hubs() {
		hubs[h.Serial] = h
	}
	polls := p.snapshots.Polls()
	polling := make(map[string]bool)
	for _, serial := range p.platform.Serials() {
		polling[serial] = true
	}

	types := p.snapshots.Modules()
	out := make([]moduleStatus, 0, len(types))
	for serial, model := range types {
		status := moduleStatus{
			Serial:  serial,
			Type:    model,
			Kind:    Classify(Module{Serial: serial, CommercialType: CommercialType{Value: model}}).String(),
			Polling: polling[serial],
			PollOK:  polls[serial].OK,
		}
		if s, ok := surveys[serial]; ok {
			status.Survey = &s
		}
		if h, ok := hubs[serial]; ok {
			status.Hub = &h
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	writeJSON(w, out)
}

func (p *Plugin) handleHubPower(w http.ResponseWriter, r *http.Request) {
	hub, ok := p.lookupHub(w, r)
	if !ok {
		return
	}

	var on bool
	switch mux.Vars(r)["state"] {
	case "on":
		on = true
	case "off":
		on = false
	default:
		http.Error(w, "power must be on or off", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	if !hub.HandleHubSwitch(ctx, on) {
		http.Error(w, "flipr rejected the power change", http.StatusBadGateway)
		return
	}
	writeJSON(w, hubView(hub.State()))
}

func (p *Plugin) handleHubMode(w http.ResponseWriter, r *http.Request) {
	hub, ok := p.lookupHub(w, r)
	if !ok {
		return
	}

	mode, err := ParseHubMode(mux.Vars(r)["mode"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()
	if !hub.HandleHubMode(ctx, mode) {
		http.Error(w, "flipr rejected the mode change", http.StatusBadGateway)
		return
	}
	writeJSON(w, hubView(hub.State()))
}

func (p *Plugin) lookupHub(w http.ResponseWriter, r *http.Request) (*HubAccessory, bool) {
	if p.platform == nil {
		http.Error(w, "flipr unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	serial := mux.Vars(r)["serial"]
	hub, ok := p.platform.Hub(serial)
	if !ok {
		http.Error(w, "unknown hub "+serial, http.StatusNotFound)
		return nil, false
	}
	return hub, true
}

type hubStateView struct {
	Known bool    `json:"known"`
	On    bool    `json:"on"`
	Mode  HubMode `json:"mode,omitempty"`
}

func hubView(s LocalHubState) hubStateView {
	return hubStateView{Known: s.Known(), On: s.On, Mode: s.Mode}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
