package data

import (
	"errors"
	"testing"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

func TestTransformedRowVirtualColumns(t *testing.T) {
	name := NewPhysicalColumn("name", TypeString)
	header := NewHeader([]*Column{name})
	src := NewSourceRow(1, header, []interface{}{"hello"})

	upper := NewTransformedColumn("name (upper)", TypeString)
	row := NewTransformedRow(src)

	if v := row.Value(upper); v != nil {
		t.Fatalf("expected virtual column to be invisible before add, got %v", v)
	}
	if err := row.Add(upper, "HELLO"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := row.Value(upper); got != "HELLO" {
		t.Fatalf("expected HELLO, got %v", got)
	}
	if got := row.Value(name); got != "hello" {
		t.Fatalf("expected physical value from parent, got %v", got)
	}
	if len(row.Columns()) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(row.Columns()))
	}
	if row.ID() != 1 {
		t.Fatalf("expected row id 1, got %d", row.ID())
	}
}

func TestTransformedRowRejectsPhysicalColumn(t *testing.T) {
	name := NewPhysicalColumn("name", TypeString)
	row := NewTransformedRow(NewSourceRow(1, NewHeader([]*Column{name}), []interface{}{"x"}))

	err := row.Add(name, "y")
	if err == nil {
		t.Fatalf("expected error when adding a physical column value")
	}
	if !errors.Is(err, dcerrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if row.Value(name) != "x" {
		t.Fatalf("physical value must be untouched")
	}
}

func TestTransformedRowFlattensLayers(t *testing.T) {
	name := NewPhysicalColumn("name", TypeString)
	src := NewSourceRow(3, NewHeader([]*Column{name}), []interface{}{"a"})
	first := NewTransformedColumn("first", TypeString)
	second := NewTransformedColumn("second", TypeString)

	r1 := NewTransformedRow(src)
	_ = r1.Add(first, 1)
	r2 := NewTransformedRow(r1)
	_ = r2.Add(second, 2)

	if r2.Parent() != InputRow(src) {
		t.Fatalf("expected flattened parent")
	}
	if r2.Value(first) != 1 || r2.Value(second) != 2 {
		t.Fatalf("unexpected values %v", r2.Values(first, second))
	}
	if r1.Value(second) != nil {
		t.Fatalf("outer layer must not leak into inner row")
	}
}

func TestColumnIdentity(t *testing.T) {
	a := NewTransformedColumn("x", "")
	b := NewTransformedColumn("x", TypeString)
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct identities for transformed columns")
	}
	if a.DataType() != TypeAny {
		t.Fatalf("expected default type ANY, got %s", a.DataType())
	}
	if a.IsPhysical() || !NewPhysicalColumn("y", TypeNumber).IsPhysical() {
		t.Fatalf("unexpected column kinds")
	}
}
