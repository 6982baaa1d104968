package classify

import "gwprov/internal/portdata"

// Indicator is the console's graphical port-health symbol.
type Indicator int

const (
	IndicatorUnknown Indicator = iota
	IndicatorGreenDot
	IndicatorGreenCircle
	IndicatorRedDot
	IndicatorRedExclamation
)

func (i Indicator) String() string {
	switch i {
	case IndicatorGreenDot:
		return "green-dot"
	case IndicatorGreenCircle:
		return "green-circle"
	case IndicatorRedDot:
		return "red-dot"
	case IndicatorRedExclamation:
		return "red-exclamation"
	default:
		return "unknown"
	}
}

// Status combines the visual indicator with data completeness.
// A green dot only counts as active when no identifier is missing; a green circle
// is weak-signal regardless of data. An unrecognized indicator keeps prior, or
// inactive when prior is empty.
func Status(ind Indicator, missing []string, prior portdata.Status) portdata.Status {
	switch ind {
	case IndicatorRedDot:
		return portdata.StatusInactive
	case IndicatorRedExclamation:
		return portdata.StatusError
	case IndicatorGreenCircle:
		return portdata.StatusWeakSignal
	case IndicatorGreenDot:
		if len(missing) == 0 {
			return portdata.StatusActive
		}
		return portdata.StatusError
	}
	if prior == "" {
		return portdata.StatusInactive
	}
	return prior
}
