package provision

// State is one node of the per-port provisioning cycle.
//
//	Init → FillIdentifierA → Continue1 → FillIdentifierB → Continue2
//	     → FillAccountDetails → Submit → {Success | Failure} → Reset → Next
//
// Abort is reachable from every state and ends the run.
type State int

const (
	StateInit State = iota
	StateFillIdentifierA
	StateContinue1
	StateFillIdentifierB
	StateContinue2
	StateFillAccountDetails
	StateSubmit
	StateSuccess
	StateFailure
	StateReset
	StateNext
	StateAbort
)

var stateNames = [...]string{
	StateInit:               "Init",
	StateFillIdentifierA:    "FillIdentifierA",
	StateContinue1:          "Continue1",
	StateFillIdentifierB:    "FillIdentifierB",
	StateContinue2:          "Continue2",
	StateFillAccountDetails: "FillAccountDetails",
	StateSubmit:             "Submit",
	StateSuccess:            "Success",
	StateFailure:            "Failure",
	StateReset:              "Reset",
	StateNext:               "Next",
	StateAbort:              "Abort",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// formStates are the interactive states in the order they run. Each one
// executes the workflow's actions for it, if any, and advances to the next.
var formStates = []State{
	StateFillIdentifierA,
	StateContinue1,
	StateFillIdentifierB,
	StateContinue2,
	StateFillAccountDetails,
}

// after returns the state that follows a successful form state.
func after(s State) State {
	for i, f := range formStates {
		if f == s && i+1 < len(formStates) {
			return formStates[i+1]
		}
	}
	return StateSubmit
}

// Terminal reports whether the per-port loop stops at s.
func (s State) Terminal() bool {
	return s == StateNext || s == StateAbort
}
