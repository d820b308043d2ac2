package flipr

import (
	"encoding/json"
	"fmt"
)

// Commercial types that map to accessories.
const (
	TypeAnalysR = "AnalysR"
	TypeStart   = "Start"
)

// Module is a device attached to the account. Only the fields the bridge
// reads are typed; the vendor object is kept verbatim in Raw.
type Module struct {
	Serial              string         `json:"Serial"`
	CommercialType      CommercialType `json:"CommercialType"`
	Status              ModuleStatus   `json:"Status"`
	LastMeasureDateTime string         `json:"LastMeasureDateTime,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type CommercialType struct {
	Value string `json:"Value"`
}

type ModuleStatus struct {
	Comment  string `json:"Comment,omitempty"`
	DateTime string `json:"DateTime,omitempty"`
	Status   string `json:"Status,omitempty"`
}

func (m *Module) UnmarshalJSON(data []byte) error {
	type plain Module
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = Module(p)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the original vendor object when available.
func (m Module) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type plain Module
	return json.Marshal(plain(m))
}

// Survey is the latest water reading of an analyser.
type Survey struct {
	MeasureID               int            `json:"MeasureId"`
	Source                  string         `json:"Source"`
	DateTime                string         `json:"DateTime"`
	Temperature             float64        `json:"Temperature"`
	PH                      Measure        `json:"PH"`
	OxydoReductionPotentiel LabeledValue   `json:"OxydoReductionPotentiel"`
	Conductivity            Conductivity   `json:"Conductivity"`
	UvIndex                 float64        `json:"UvIndex"`
	Battery                 BatteryReading `json:"Battery"`
	Desinfectant            Measure        `json:"Desinfectant"`
}

type Measure struct {
	Label           string  `json:"Label"`
	Message         string  `json:"Message"`
	Deviation       float64 `json:"Deviation"`
	Value           float64 `json:"Value"`
	DeviationSector string  `json:"DeviationSector"`
}

type LabeledValue struct {
	Label string  `json:"Label"`
	Value float64 `json:"Value"`
}

type Conductivity struct {
	Label string `json:"Label"`
	Level string `json:"Level"`
}

type BatteryReading struct {
	Label     string  `json:"Label"`
	Deviation float64 `json:"Deviation"`
}

// HubState is the equipment state reported by a hub.
type HubState struct {
	StateEquipment int             `json:"stateEquipment"`
	Behavior       HubMode         `json:"behavior"`
	Planning       json.RawMessage `json:"planning,omitempty"`
}

// IsOn reports whether the controlled equipment is running.
func (s HubState) IsOn() bool {
	return s.StateEquipment == 1
}

// HubMode is the hub behaviour.
type HubMode string

const (
	ModeManual   HubMode = "manual"
	ModeAuto     HubMode = "auto"
	ModePlanning HubMode = "planning"
)

// ParseHubMode validates a mode string.
func ParseHubMode(s string) (HubMode, error) {
	switch HubMode(s) {
	case ModeManual, ModeAuto, ModePlanning:
		return HubMode(s), nil
	default:
		return "", fmt.Errorf("invalid hub mode %q (want manual, auto or planning)", s)
	}
}
