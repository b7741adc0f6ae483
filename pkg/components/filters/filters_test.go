package filters

import (
	"testing"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

func newFilter(t *testing.T, d *component.Descriptor, inputs []*data.Column, pairs ...interface{}) component.Filter {
	t.Helper()
	props, err := component.NewProperties(pairs...).Validate(d.Name, d.Properties)
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	c, err := d.NewInstance(component.Config{Name: d.Name, Inputs: inputs, Properties: props})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if v, ok := c.(component.Validator); ok {
		if err := v.Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	return c.(component.Filter)
}

func categorize(t *testing.T, f component.Filter, row data.InputRow) string {
	t.Helper()
	category, err := f.Categorize(row)
	if err != nil {
		t.Fatalf("categorize row %d: %v", row.ID(), err)
	}
	return category
}

func TestSingleWordFilter(t *testing.T) {
	col := data.NewPhysicalColumn("name", data.TypeString)
	f := newFilter(t, SingleWordDescriptor(), []*data.Column{col})

	tests := []struct {
		value interface{}
		want  string
	}{
		{"hello", Valid},
		{"  hello  ", Valid},
		{"hello world", Invalid},
		{"hello\tworld", Invalid},
		{"", Invalid},
		{"   ", Invalid},
		{nil, Invalid},
		{42, Valid},
	}
	for i, tt := range tests {
		row := data.NewMapRow(int64(i + 1)).Put(col, tt.value)
		if got := categorize(t, f, row); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestMaxRowsFilter(t *testing.T) {
	f := newFilter(t, MaxRowsDescriptor(), nil, PropertyFirstRow, 3, PropertyMaxRows, 2)
	var accepted []int64
	for id := int64(1); id <= 6; id++ {
		if categorize(t, f, data.NewMapRow(id)) == Valid {
			accepted = append(accepted, id)
		}
	}
	if len(accepted) != 2 || accepted[0] != 3 || accepted[1] != 4 {
		t.Errorf("expected rows 3 and 4, got %v", accepted)
	}
}

func TestMaxRowsDefaults(t *testing.T) {
	f := newFilter(t, MaxRowsDescriptor(), nil).(*MaxRowsFilter)
	first, rows := f.Window()
	if first != 1 || rows != 1000 {
		t.Errorf("expected window 1/1000, got %d/%d", first, rows)
	}
	if MaxRowsDescriptor().Distributable() {
		t.Error("max rows must not be distributable")
	}
}

func TestMaxRowsRejectsNonPositiveWindow(t *testing.T) {
	d := MaxRowsDescriptor()
	props, err := component.NewProperties(PropertyMaxRows, 0).Validate(d.Name, d.Properties)
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	c, err := d.NewInstance(component.Config{Name: d.Name, Properties: props})
	if err != nil {
		t.Fatalf("new instance: %v", err)
	}
	if err := c.(component.Validator).Validate(); err == nil {
		t.Error("expected max rows 0 to be rejected")
	}
}

func TestNullCheckFilter(t *testing.T) {
	a := data.NewPhysicalColumn("a", data.TypeString)
	b := data.NewPhysicalColumn("b", data.TypeString)
	inputs := []*data.Column{a, b}

	rows := []struct {
		a         interface{}
		b         interface{}
		any       string
		all       string
		emptyNull string
	}{
		{"x", "y", NotNull, NotNull, NotNull},
		{"x", nil, Null, NotNull, Null},
		{nil, nil, Null, Null, Null},
		{"", "y", NotNull, NotNull, Null},
	}

	anyField := newFilter(t, NullCheckDescriptor(), inputs)
	allFields := newFilter(t, NullCheckDescriptor(), inputs, PropertyEvaluationMode, EvaluationAllFields)
	emptyAsNull := newFilter(t, NullCheckDescriptor(), inputs, PropertyEmptyAsNull, true)

	for i, r := range rows {
		row := data.NewMapRow(int64(i + 1)).Put(a, r.a).Put(b, r.b)
		if got := categorize(t, anyField, row); got != r.any {
			t.Errorf("row %d any field: expected %s, got %s", i+1, r.any, got)
		}
		if got := categorize(t, allFields, row); got != r.all {
			t.Errorf("row %d all fields: expected %s, got %s", i+1, r.all, got)
		}
		if got := categorize(t, emptyAsNull, row); got != r.emptyNull {
			t.Errorf("row %d empty as null: expected %s, got %s", i+1, r.emptyNull, got)
		}
	}
}

func TestNullCheckRejectsUnknownMode(t *testing.T) {
	d := NullCheckDescriptor()
	if _, err := component.NewProperties(PropertyEvaluationMode, "SOME_FIELDS").Validate(d.Name, d.Properties); err == nil {
		t.Error("expected unknown evaluation mode to be rejected")
	}
}

func TestEqualsFilter(t *testing.T) {
	col := data.NewPhysicalColumn("v", data.TypeAny)
	sensitive := newFilter(t, EqualsDescriptor(), []*data.Column{col}, PropertyValues, []string{"Foo", "1"})
	insensitive := newFilter(t, EqualsDescriptor(), []*data.Column{col},
		PropertyValues, []string{"Foo", "1"}, PropertyCaseSensitive, false)

	tests := []struct {
		value       interface{}
		sensitive   string
		insensitive string
	}{
		{"Foo", Equals, Equals},
		{"foo", NotEquals, Equals},
		{"bar", NotEquals, NotEquals},
		{1, Equals, Equals},
		{1.0, Equals, Equals},
		{" 1.0 ", Equals, Equals},
		{2, NotEquals, NotEquals},
		{nil, NotEquals, NotEquals},
	}
	for i, tt := range tests {
		row := data.NewMapRow(int64(i + 1)).Put(col, tt.value)
		if got := categorize(t, sensitive, row); got != tt.sensitive {
			t.Errorf("%v case sensitive: expected %s, got %s", tt.value, tt.sensitive, got)
		}
		if got := categorize(t, insensitive, row); got != tt.insensitive {
			t.Errorf("%v case insensitive: expected %s, got %s", tt.value, tt.insensitive, got)
		}
	}
}

func TestEqualsRequiresValues(t *testing.T) {
	d := EqualsDescriptor()
	if _, err := component.NewProperties().Validate(d.Name, d.Properties); err == nil {
		t.Error("expected missing values to be rejected")
	}
}

func TestDescriptorsAreValid(t *testing.T) {
	reg := component.NewRegistry()
	for _, d := range Descriptors() {
		if err := reg.Register(d); err != nil {
			t.Errorf("register %s: %v", d.Name, err)
		}
		if d.Kind != component.KindFilter {
			t.Errorf("%s is a %s", d.Name, d.Kind)
		}
	}
}
