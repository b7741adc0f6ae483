package analyzers

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Property names of the reference data matcher
const (
	PropertyDictionaries    = "dictionaries"
	PropertySynonymCatalogs = "synonym catalogs"
	PropertyStringPatterns  = "string patterns"
)

// ErrNoReferenceData is returned when a matcher has nothing to match against
var ErrNoReferenceData = errors.New("No dictionaries, synonym catalogs or string patterns selected")

type matcher struct {
	name  string
	match func(string) bool
}

// ReferenceDataMatcherAnalyzer matches every input value against
// dictionaries, synonym catalogs and string patterns. Every input and
// reference data pair becomes a boolean column "<input> in <name>" that is
// analyzed like the boolean analyzer does.
type ReferenceDataMatcherAnalyzer struct {
	inputs          []*data.Column
	catalog         *refdata.Catalog
	dictionaries    []string
	synonymCatalogs []string
	stringPatterns  []string

	matchers []matcher
	counter  *booleanCounter
}

func ReferenceDataMatcherDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Reference data matcher",
		Kind:        component.KindAnalyzer,
		Description: "Matches values against dictionaries, synonym catalogs and string patterns.",
		MinInputs:   1,
		Reducer:     booleanReducer,
		Properties: []component.PropertySpec{
			{Name: PropertyDictionaries, Type: component.PropertyStringList},
			{Name: PropertySynonymCatalogs, Type: component.PropertyStringList},
			{Name: PropertyStringPatterns, Type: component.PropertyStringList},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			return &ReferenceDataMatcherAnalyzer{
				inputs:          cfg.Inputs,
				catalog:         cfg.ReferenceData,
				dictionaries:    cfg.Properties.StringList(PropertyDictionaries),
				synonymCatalogs: cfg.Properties.StringList(PropertySynonymCatalogs),
				stringPatterns:  cfg.Properties.StringList(PropertyStringPatterns),
			}, nil
		},
	}
}

// Validate resolves the reference data by name
func (a *ReferenceDataMatcherAnalyzer) Validate() error {
	if len(a.dictionaries)+len(a.synonymCatalogs)+len(a.stringPatterns) == 0 {
		return ErrNoReferenceData
	}
	if a.catalog == nil {
		return fmt.Errorf("no reference data catalog available")
	}

	a.matchers = a.matchers[:0]
	for _, name := range a.dictionaries {
		d, err := a.catalog.Dictionary(name)
		if err != nil {
			return err
		}
		a.matchers = append(a.matchers, matcher{name: d.Name(), match: d.Contains})
	}
	for _, name := range a.synonymCatalogs {
		s, err := a.catalog.SynonymCatalog(name)
		if err != nil {
			return err
		}
		a.matchers = append(a.matchers, matcher{name: s.Name(), match: func(v string) bool {
			_, ok := s.MasterTerm(v)
			return ok
		}})
	}
	for _, name := range a.stringPatterns {
		p, err := a.catalog.StringPattern(name)
		if err != nil {
			return err
		}
		a.matchers = append(a.matchers, matcher{name: p.Name(), match: p.Matches})
	}

	a.counter = newBooleanCounter(a.MatchColumns())
	return nil
}

// MatchColumns names the boolean columns, grouped by input in the order
// dictionaries, synonym catalogs, string patterns
func (a *ReferenceDataMatcherAnalyzer) MatchColumns() []string {
	columns := make([]string, 0, len(a.inputs)*len(a.matchers))
	for _, col := range a.inputs {
		for _, m := range a.matchers {
			columns = append(columns, col.Name()+" in "+m.name)
		}
	}
	return columns
}

func (a *ReferenceDataMatcherAnalyzer) Run(row data.InputRow, distinctCount int) error {
	if a.counter == nil {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	values := make([]string, 0, len(a.inputs)*len(a.matchers))
	for _, col := range a.inputs {
		v := row.Value(col)
		for _, m := range a.matchers {
			switch {
			case v == nil:
				values = append(values, valueNull)
			case m.match(cast.ToString(v)):
				values = append(values, valueTrue)
			default:
				values = append(values, valueFalse)
			}
		}
	}
	a.counter.add(values, distinctCount)
	return nil
}

func (a *ReferenceDataMatcherAnalyzer) Result() (result.AnalyzerResult, error) {
	if a.counter == nil {
		return nil, fmt.Errorf("reference data matcher is not validated")
	}
	return a.counter.result(), nil
}
