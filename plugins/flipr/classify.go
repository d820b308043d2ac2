package flipr

// Kind is the accessory shape a module is exposed as.
type Kind int

const (
	KindUnknown Kind = iota
	KindReader
	KindHub
)

func (k Kind) String() string {
	switch k {
	case KindReader:
		return "reader"
	case KindHub:
		return "hub"
	default:
		return "unknown"
	}
}

// Classify maps a module to an accessory kind by its commercial type.
func Classify(m Module) Kind {
	switch m.CommercialType.Value {
	case TypeAnalysR:
		return KindReader
	case TypeStart:
		return KindHub
	default:
		return KindUnknown
	}
}

// Service subtypes, stable across restarts so cached services are reused.
const (
	subtypeWater = "water"
	subtypePH    = "ph"
	subtypePower = "power"
	subtypeAuto  = "auto"
)
