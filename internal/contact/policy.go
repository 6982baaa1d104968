// Package contact selects the contact email submitted with each provisioned port.
package contact

import (
	"fmt"
	"strings"
)

// Strategy names how the email list is rotated.
type Strategy string

const (
	StrategySingle Strategy = "single"
	StrategyLoop   Strategy = "loop"
	StrategyNTimes Strategy = "n-times"
)

// DefaultEmail is used when a rotating strategy has nothing to rotate through.
const DefaultEmail = "rb@usa.com"

// ParseStrategy accepts the config and environment spellings.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return StrategySingle, nil
	case "loop":
		return StrategyLoop, nil
	case "n-times", "ntimes", "n_times":
		return StrategyNTimes, nil
	}
	return "", fmt.Errorf("unknown email strategy %q", s)
}

// Policy picks an email for a zero-based counter. The counter advances once
// per attempted port; skipped ports do not consume an email.
type Policy struct {
	Strategy Strategy
	Single   string
	List     []string
	N        int
	Default  string
}

// Select returns the email for iteration counter.
//
//	single:  Single (Default when empty)
//	loop:    List[counter mod len(List)]
//	n-times: List[:N][counter mod N]
func (p Policy) Select(counter int) string {
	fallback := p.Default
	if fallback == "" {
		fallback = DefaultEmail
	}
	if counter < 0 {
		counter = 0
	}

	switch p.Strategy {
	case StrategyLoop:
		if len(p.List) == 0 {
			return fallback
		}
		return p.List[counter%len(p.List)]
	case StrategyNTimes:
		n := min(p.N, len(p.List))
		if n <= 0 {
			return fallback
		}
		return p.List[counter%n]
	default:
		if p.Single == "" {
			return fallback
		}
		return p.Single
	}
}

// Describe renders the policy for run headers.
func (p Policy) Describe() string {
	switch p.Strategy {
	case StrategyLoop:
		return fmt.Sprintf("loop over %d emails", len(p.List))
	case StrategyNTimes:
		return fmt.Sprintf("rotate first %d of %d emails", min(p.N, len(p.List)), len(p.List))
	default:
		return fmt.Sprintf("single %s", p.Select(0))
	}
}
