package pipeline

import "fmt"

// A pipeline stage. The pipeline is a strict forward DAG: states never
// transition backwards and a failed invocation is never retried in place.
type State string

const (
	StatePlanning            State = "planning"
	StateDependencyCaching   State = "dependency-caching"
	StateApplicationBuilding State = "application-building"
	StateExternalIntegrating State = "external-integrating"
	StateAssembling          State = "assembling"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// Forward transitions of the primary chain. The external-integrating state
// belongs to the concurrent branch and joins at assembling.
var transitions = map[State][]State{
	StatePlanning:            {StateDependencyCaching, StateFailed},
	StateDependencyCaching:   {StateApplicationBuilding, StateFailed},
	StateApplicationBuilding: {StateAssembling, StateFailed},
	StateExternalIntegrating: {StateAssembling, StateFailed},
	StateAssembling:          {StateDone, StateFailed},
}

// Reports whether the state is terminal.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Reports whether a transition between two states is allowed.
func ValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// A stage failure. The pipeline reports the failing stage and the
// underlying error verbatim; nothing downstream of a failure runs.
type Failure struct {
	Stage State // Stage that failed.
	Err   error // Underlying error.
}

// Formats the failure as "<stage>: <error>".
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

// Returns the underlying error for errors.Is / errors.As chains.
func (f *Failure) Unwrap() error {
	return f.Err
}
