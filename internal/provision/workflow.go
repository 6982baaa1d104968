package provision

import (
	"fmt"
	"strings"
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/portdata"
)

// Value says where a fill action gets its text.
type Value struct {
	Attribute portdata.Attribute `json:"attribute,omitempty"` // from the port record
	Email     bool               `json:"email,omitempty"`     // the rotated contact email
	Literal   string             `json:"literal,omitempty"`
}

// FromRecord fills with the port's attr value.
func FromRecord(attr portdata.Attribute) Value { return Value{Attribute: attr} }

// ContactEmail fills with the email selected for this port.
func ContactEmail() Value { return Value{Email: true} }

// Literal fills with fixed text.
func Literal(s string) Value { return Value{Literal: s} }

func (v Value) resolve(rec portdata.Record, email string) (string, error) {
	switch {
	case v.Attribute != "":
		s, ok := rec.Value(v.Attribute)
		if !ok {
			return "", fmt.Errorf("%s is null", v.Attribute.Label())
		}
		return s, nil
	case v.Email:
		return email, nil
	default:
		return v.Literal, nil
	}
}

// ActionKind is what an action does with its target.
type ActionKind string

const (
	ActionFill  ActionKind = "fill"
	ActionClick ActionKind = "click"
)

// Action waits for Target to be visible for at most Wait, then acts on it.
// A zero Wait uses the workflow's ActionTimeout.
type Action struct {
	Kind   ActionKind      `json:"kind"`
	Target browser.Locator `json:"target"`
	Value  Value           `json:"value,omitempty"`
	Wait   time.Duration   `json:"wait,omitempty"`
}

// Fill returns a fill action.
func Fill(target browser.Locator, v Value, wait time.Duration) Action {
	return Action{Kind: ActionFill, Target: target, Value: v, Wait: wait}
}

// Click returns a click action.
func Click(target browser.Locator, wait time.Duration) Action {
	return Action{Kind: ActionClick, Target: target, Wait: wait}
}

// Marker identifies a page by a visible element, a URL fragment, or both
// (either one matching is enough).
type Marker struct {
	Locator     *browser.Locator `json:"locator,omitempty"`
	URLContains string           `json:"urlContains,omitempty"`
}

// Empty reports whether the marker can never match.
func (m Marker) Empty() bool {
	return m.Locator == nil && m.URLContains == ""
}

func (m Marker) String() string {
	var parts []string
	if m.Locator != nil {
		parts = append(parts, m.Locator.String())
	}
	if m.URLContains != "" {
		parts = append(parts, "url~"+m.URLContains)
	}
	return strings.Join(parts, " or ")
}

// Workflow is the data that drives the engine for one external process.
// States without actions pass straight through.
type Workflow struct {
	Name     string
	EntryURL string
	// Required attributes must all be present for a port to be attempted.
	Required []portdata.Attribute
	Steps    map[State][]Action

	// Success and Failure are checked after the Submit actions run.
	Success    Marker
	Failure    Marker
	SubmitWait time.Duration

	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	// Settle is the pause after every reset navigation.
	Settle time.Duration
}

// Validate checks the workflow is runnable.
func (w Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow has no name")
	}
	if w.EntryURL == "" {
		return fmt.Errorf("workflow %s: entry URL is required", w.Name)
	}
	if len(w.Required) == 0 {
		return fmt.Errorf("workflow %s: no required attributes", w.Name)
	}
	if w.Success.Empty() {
		return fmt.Errorf("workflow %s: success marker is required", w.Name)
	}
	if len(w.Steps[StateSubmit]) == 0 {
		return fmt.Errorf("workflow %s: submit step has no actions", w.Name)
	}
	for state := range w.Steps {
		if state < StateFillIdentifierA || state > StateSubmit {
			return fmt.Errorf("workflow %s: actions bound to non-form state %s", w.Name, state)
		}
	}
	return nil
}

func (w Workflow) actionWait(a Action) time.Duration {
	if a.Wait > 0 {
		return a.Wait
	}
	return w.ActionTimeout
}
