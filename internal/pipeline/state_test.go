package pipeline

import (
	"errors"
	"testing"
)

func TestValidTransition(t *testing.T) {
	allowed := [][2]State{
		{StatePlanning, StateDependencyCaching},
		{StateDependencyCaching, StateApplicationBuilding},
		{StateApplicationBuilding, StateAssembling},
		{StateExternalIntegrating, StateAssembling},
		{StateAssembling, StateDone},
		{StatePlanning, StateFailed},
		{StateAssembling, StateFailed},
	}
	for _, pair := range allowed {
		if !ValidTransition(pair[0], pair[1]) {
			t.Fatalf("transition %s -> %s rejected", pair[0], pair[1])
		}
	}

	denied := [][2]State{
		{StateDependencyCaching, StatePlanning},
		{StateAssembling, StatePlanning},
		{StateDone, StateFailed},
		{StateDone, StatePlanning},
		{StateFailed, StateAssembling},
		{StatePlanning, StateAssembling},
	}
	for _, pair := range denied {
		if ValidTransition(pair[0], pair[1]) {
			t.Fatalf("transition %s -> %s allowed", pair[0], pair[1])
		}
	}
}

func TestTerminal(t *testing.T) {
	if !StateDone.Terminal() || !StateFailed.Terminal() {
		t.Fatal("done and failed must be terminal")
	}
	if StatePlanning.Terminal() || StateAssembling.Terminal() {
		t.Fatal("non-terminal state reported terminal")
	}
}

func TestFailureWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	failure := &Failure{Stage: StateAssembling, Err: cause}

	if !errors.Is(failure, cause) {
		t.Fatal("failure does not unwrap to its cause")
	}
	if failure.Error() != "assembling: boom" {
		t.Fatalf("Error() = %q", failure.Error())
	}
}
