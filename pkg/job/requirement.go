package job

import (
	"strings"

	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Requirement is a predicate over the outcomes a row has collected. A nil
// Requirement means the component is unconditional.
type Requirement interface {
	// IsSatisfied must be free of side effects. row may be nil when only
	// the outcomes matter.
	IsSatisfied(row data.InputRow, outcomes *FilterOutcomes) bool
	// ProcessingDependencies lists the outcomes whose filters must run first
	ProcessingDependencies() []FilterOutcome
	String() string
}

// OutcomeRequirement is satisfied when a single outcome was produced
type OutcomeRequirement struct {
	outcome FilterOutcome
}

// Requires creates a requirement on one outcome
func Requires(o FilterOutcome) *OutcomeRequirement {
	return &OutcomeRequirement{outcome: o}
}

// Outcome returns the required outcome
func (r *OutcomeRequirement) Outcome() FilterOutcome { return r.outcome }

func (r *OutcomeRequirement) IsSatisfied(_ data.InputRow, outcomes *FilterOutcomes) bool {
	return outcomes.Contains(r.outcome)
}

func (r *OutcomeRequirement) ProcessingDependencies() []FilterOutcome {
	return []FilterOutcome{r.outcome}
}

func (r *OutcomeRequirement) String() string { return r.outcome.String() }

// Operator joins the children of a compound requirement
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// CompoundRequirement joins child requirements with AND or OR
type CompoundRequirement struct {
	operator Operator
	children []Requirement
}

// AllOf is satisfied when every child is satisfied
func AllOf(children ...Requirement) *CompoundRequirement {
	return &CompoundRequirement{operator: OperatorAnd, children: children}
}

// AnyOf is satisfied when at least one child is satisfied
func AnyOf(children ...Requirement) *CompoundRequirement {
	return &CompoundRequirement{operator: OperatorOr, children: children}
}

// AnyOutcome is satisfied when at least one of the outcomes was produced
func AnyOutcome(outcomes ...FilterOutcome) *CompoundRequirement {
	children := make([]Requirement, len(outcomes))
	for i, o := range outcomes {
		children[i] = Requires(o)
	}
	return AnyOf(children...)
}

// Operator returns the joining operator
func (r *CompoundRequirement) Operator() Operator { return r.operator }

// Children returns the joined requirements
func (r *CompoundRequirement) Children() []Requirement {
	return append([]Requirement(nil), r.children...)
}

func (r *CompoundRequirement) IsSatisfied(row data.InputRow, outcomes *FilterOutcomes) bool {
	if r.operator == OperatorAnd {
		for _, c := range r.children {
			if !c.IsSatisfied(row, outcomes) {
				return false
			}
		}
		return len(r.children) > 0
	}
	for _, c := range r.children {
		if c.IsSatisfied(row, outcomes) {
			return true
		}
	}
	return false
}

func (r *CompoundRequirement) ProcessingDependencies() []FilterOutcome {
	seen := make(map[FilterOutcome]struct{})
	var deps []FilterOutcome
	for _, c := range r.children {
		for _, o := range c.ProcessingDependencies() {
			if _, ok := seen[o]; ok {
				continue
			}
			seen[o] = struct{}{}
			deps = append(deps, o)
		}
	}
	return deps
}

func (r *CompoundRequirement) String() string {
	parts := make([]string, len(r.children))
	for i, c := range r.children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+string(r.operator)+" ") + ")"
}

type anyRequirement struct{}

// Any is always satisfied. Unlike a nil requirement it also overrides the
// requirements inherited from the producers of the input columns.
var Any Requirement = anyRequirement{}

func (anyRequirement) IsSatisfied(data.InputRow, *FilterOutcomes) bool { return true }
func (anyRequirement) ProcessingDependencies() []FilterOutcome         { return nil }
func (anyRequirement) String() string                                  { return AnyRequirementName }

// AnyRequirementName is the textual form of Any in job definitions
const AnyRequirementName = "_any_"

// IsAny reports whether r is the always satisfied requirement
func IsAny(r Requirement) bool {
	_, ok := r.(anyRequirement)
	return ok
}

// SatisfiedForFlowOrdering reports whether every processing dependency of r
// is present in outcomes and r holds on them. Nil and Any are always satisfied.
func SatisfiedForFlowOrdering(r Requirement, outcomes *FilterOutcomes) bool {
	if r == nil || IsAny(r) {
		return true
	}
	for _, o := range r.ProcessingDependencies() {
		if !outcomes.Contains(o) {
			return false
		}
	}
	return r.IsSatisfied(nil, outcomes)
}
