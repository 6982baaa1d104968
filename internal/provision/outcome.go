package provision

import (
	"context"
	"fmt"
	"time"

	"gwprov/internal/portdata"
)

// Kind classifies a port's provisioning result.
type Kind string

const (
	KindSuccess Kind = "success"
	KindSkipped Kind = "skipped"
	KindFailed  Kind = "failed"
)

// Outcome is the single result recorded for a port in one run. Ports that
// were never reached, or were interrupted by an abort, have none.
type Outcome struct {
	Workflow string       `json:"workflow"`
	Gateway  string       `json:"gateway"`
	Port     portdata.Key `json:"port"`
	Kind     Kind         `json:"kind"`
	Stage    string       `json:"stage,omitempty"`  // failing state, failed only
	Detail   string       `json:"detail,omitempty"` // skip reason or failure detail
	Email    string       `json:"email,omitempty"`
	URL      string       `json:"url,omitempty"`
	At       time.Time    `json:"at"`
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSkipped:
		return fmt.Sprintf("skipped(%s)", o.Detail)
	case KindFailed:
		return fmt.Sprintf("failed(%s, %s)", o.Stage, o.Detail)
	default:
		return string(o.Kind)
	}
}

// Recorder receives every outcome as it is decided. Implementations must be
// quick; a returned error is logged and does not affect the run.
type Recorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// Recorders fans an outcome out to several recorders.
type Recorders []Recorder

func (rs Recorders) RecordOutcome(ctx context.Context, o Outcome) error {
	var first error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.RecordOutcome(ctx, o); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Summary counts outcomes by kind.
type Summary struct {
	Success int
	Skipped int
	Failed  int
}

// Summarize tallies outcomes.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Kind {
		case KindSuccess:
			s.Success++
		case KindSkipped:
			s.Skipped++
		case KindFailed:
			s.Failed++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("success=%d failed=%d skipped=%d", s.Success, s.Failed, s.Skipped)
}
