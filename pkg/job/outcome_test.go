package job

import (
	"testing"

	"github.com/wehubfusion/datacleaner/pkg/data"
)

func TestFilterOutcomesStructuralEquality(t *testing.T) {
	f := &FilterJob{}
	outcomes := NewFilterOutcomes()
	outcomes.Add(f.Outcome("VALID"))

	if !outcomes.Contains(NewFilterOutcome(f, "VALID")) {
		t.Fatalf("expected structurally equal outcome to be contained")
	}
	if outcomes.Contains(f.Outcome("INVALID")) {
		t.Fatalf("different category must not be contained")
	}
	if outcomes.Contains((&FilterJob{}).Outcome("VALID")) {
		t.Fatalf("same category of another filter must not be contained")
	}

	outcomes.Add(NewFilterOutcome(f, "VALID"))
	if outcomes.Len() != 1 {
		t.Fatalf("expected duplicate add to be ignored, got %d", outcomes.Len())
	}
}

func TestFilterOutcomesClone(t *testing.T) {
	f := &FilterJob{}
	original := NewFilterOutcomes(f.Outcome("A"))
	clone := original.Clone()
	clone.Add(f.Outcome("B"))

	if original.Contains(f.Outcome("B")) {
		t.Fatalf("clone must be independent")
	}
	if !clone.Contains(f.Outcome("A")) {
		t.Fatalf("clone must keep existing outcomes")
	}
}

func TestRequirements(t *testing.T) {
	f := &FilterJob{}
	g := &FilterJob{}
	outcomes := NewFilterOutcomes(f.Outcome("VALID"), g.Outcome("LOW"))

	if !Requires(f.Outcome("VALID")).IsSatisfied(nil, outcomes) {
		t.Fatalf("expected single requirement to hold")
	}
	if Requires(f.Outcome("INVALID")).IsSatisfied(nil, outcomes) {
		t.Fatalf("requirement on an outcome that was not produced must not hold")
	}
	if !AllOf(Requires(f.Outcome("VALID")), Requires(g.Outcome("LOW"))).IsSatisfied(nil, outcomes) {
		t.Fatalf("expected AND to hold")
	}
	if AllOf(Requires(f.Outcome("VALID")), Requires(g.Outcome("HIGH"))).IsSatisfied(nil, outcomes) {
		t.Fatalf("expected AND to fail")
	}
	if !AnyOutcome(f.Outcome("INVALID"), g.Outcome("LOW")).IsSatisfied(nil, outcomes) {
		t.Fatalf("expected OR to hold")
	}
	if AllOf().IsSatisfied(nil, outcomes) {
		t.Fatalf("empty AND must not hold")
	}
	if !Any.IsSatisfied(nil, NewFilterOutcomes()) || len(Any.ProcessingDependencies()) != 0 {
		t.Fatalf("Any must always hold without dependencies")
	}

	deps := AnyOf(Requires(f.Outcome("A")), AllOf(Requires(f.Outcome("A")), Requires(g.Outcome("B")))).ProcessingDependencies()
	if len(deps) != 2 {
		t.Fatalf("expected de-duplicated dependencies, got %v", deps)
	}
}

func TestRequirementIsPureOverRow(t *testing.T) {
	f := &FilterJob{}
	outcomes := NewFilterOutcomes(f.Outcome("VALID"))
	row := data.NewMapRow(1)
	req := Requires(f.Outcome("VALID"))
	for i := 0; i < 3; i++ {
		if !req.IsSatisfied(row, outcomes) {
			t.Fatalf("requirement evaluation must be repeatable")
		}
	}
	if outcomes.Len() != 1 {
		t.Fatalf("requirement evaluation must not change outcomes")
	}
}

func TestSatisfiedForFlowOrdering(t *testing.T) {
	f := &FilterJob{}
	req := AnyOutcome(f.Outcome("A"), f.Outcome("B"))

	if SatisfiedForFlowOrdering(req, NewFilterOutcomes(f.Outcome("A"))) {
		t.Fatalf("flow ordering requires every dependency to be available")
	}
	if !SatisfiedForFlowOrdering(req, NewFilterOutcomes(f.Outcome("A"), f.Outcome("B"))) {
		t.Fatalf("expected flow ordering to hold once all outcomes are available")
	}
	if !SatisfiedForFlowOrdering(nil, NewFilterOutcomes()) || !SatisfiedForFlowOrdering(Any, nil) {
		t.Fatalf("nil and Any are always satisfied")
	}
}
