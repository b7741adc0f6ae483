package job

import (
	"fmt"
	"strings"
)

// FilterOutcome is one category produced by one filter job. Outcomes are
// comparable values: equal iff same filter job and same category.
type FilterOutcome struct {
	filter   *FilterJob
	category string
}

// NewFilterOutcome creates the outcome of filter for category
func NewFilterOutcome(filter *FilterJob, category string) FilterOutcome {
	return FilterOutcome{filter: filter, category: category}
}

// Filter returns the producing filter job
func (o FilterOutcome) Filter() *FilterJob { return o.filter }

// Category returns the outcome category
func (o FilterOutcome) Category() string { return o.category }

// IsZero reports whether the outcome is unset
func (o FilterOutcome) IsZero() bool { return o.filter == nil }

func (o FilterOutcome) String() string {
	if o.filter == nil {
		return "<none>." + o.category
	}
	return o.filter.Name() + "." + o.category
}

// FilterOutcomes is the row-scoped set of outcomes produced so far. It only
// grows; Clone gives an independent copy. Not safe for concurrent use: each
// row owns its own set.
type FilterOutcomes struct {
	order []FilterOutcome
	set   map[FilterOutcome]struct{}
}

// NewFilterOutcomes creates a set holding outcomes
func NewFilterOutcomes(outcomes ...FilterOutcome) *FilterOutcomes {
	s := &FilterOutcomes{set: make(map[FilterOutcome]struct{}, len(outcomes)+4)}
	for _, o := range outcomes {
		s.Add(o)
	}
	return s
}

// Add inserts o
func (s *FilterOutcomes) Add(o FilterOutcome) {
	if _, ok := s.set[o]; ok {
		return
	}
	s.set[o] = struct{}{}
	s.order = append(s.order, o)
}

// Contains tests membership by outcome equality
func (s *FilterOutcomes) Contains(o FilterOutcome) bool {
	if s == nil {
		return false
	}
	_, ok := s.set[o]
	return ok
}

// Clone returns an independent copy
func (s *FilterOutcomes) Clone() *FilterOutcomes {
	return NewFilterOutcomes(s.order...)
}

// All returns the outcomes in insertion order
func (s *FilterOutcomes) All() []FilterOutcome {
	return append([]FilterOutcome(nil), s.order...)
}

// Len returns the number of outcomes
func (s *FilterOutcomes) Len() int { return len(s.order) }

func (s *FilterOutcomes) String() string {
	parts := make([]string, len(s.order))
	for i, o := range s.order {
		parts[i] = o.String()
	}
	return fmt.Sprintf("FilterOutcomes[%s]", strings.Join(parts, ", "))
}
