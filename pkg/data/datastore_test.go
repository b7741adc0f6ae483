package data

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newPeople() *MemoryDatastore {
	return NewMemoryDatastore("people", "name", "city").
		Add("ann", "oslo").
		Add("bob", "rome").
		Add("cid", "lima").
		Add("dan", "kiev").
		Add("eve", "bern")
}

func TestMemoryDatastoreProjectionAndWindow(t *testing.T) {
	ds := newPeople()
	city := NewPhysicalColumn("city", TypeString)

	cursor, err := ds.Open(context.Background(), Query{Columns: []*Column{city}, FirstRow: 2, MaxRows: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, err := ReadAll(context.Background(), cursor)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "rome" || rows[1][0] != "lima" {
		t.Fatalf("unexpected rows %v", rows)
	}

	if _, err := ds.Open(context.Background(), Query{Columns: []*Column{NewPhysicalColumn("age", TypeNumber)}}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestSliceDatastore(t *testing.T) {
	ds := newPeople()
	name := NewPhysicalColumn("name", TypeString)
	view := Slice(ds, 3, 2)

	cursor, err := view.Open(context.Background(), Query{Columns: []*Column{name}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, _ := ReadAll(context.Background(), cursor)
	if len(rows) != 2 || rows[0][0] != "cid" || rows[1][0] != "dan" {
		t.Fatalf("unexpected rows %v", rows)
	}

	// nested window: second row of the view only
	cursor, _ = view.Open(context.Background(), Query{Columns: []*Column{name}, FirstRow: 2, MaxRows: 5})
	rows, _ = ReadAll(context.Background(), cursor)
	if len(rows) != 1 || rows[0][0] != "dan" {
		t.Fatalf("unexpected nested rows %v", rows)
	}

	n, err := view.(RowCounter).CountRows(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows in view, got %d (%v)", n, err)
	}
	if off := view.(RowOffsetter).FirstRowOffset(); off != 2 {
		t.Fatalf("expected offset 2, got %d", off)
	}

	tail := Slice(ds, 5, 0)
	n, _ = tail.(RowCounter).CountRows(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 row in tail view, got %d", n)
	}
}

func TestCSVDatastore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv")
	content := "name;city\nann;oslo\nbob;rome\ncid;lima\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	ds := NewCSVDatastore("people", path, ';')
	fields, err := ds.Fields()
	if err != nil || len(fields) != 2 {
		t.Fatalf("unexpected fields %v (%v)", fields, err)
	}
	n, err := ds.CountRows(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 rows, got %d (%v)", n, err)
	}

	cursor, err := ds.Open(context.Background(), Query{
		Columns:  []*Column{NewPhysicalColumn("city", TypeString), NewPhysicalColumn("name", TypeString)},
		FirstRow: 2,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, err := ReadAll(context.Background(), cursor)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "rome" || rows[0][1] != "bob" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestSQLDatastore(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE customers (name TEXT, age INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO customers VALUES ('ann', 31), ('bob', 42), ('cid', 27)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ds := NewSQLDatastore("crm", db, "customers", DialectSQLite)
	n, err := ds.CountRows(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 rows, got %d (%v)", n, err)
	}

	age := NewPhysicalColumn("age", TypeNumber)
	name := NewPhysicalColumn("name", TypeString)
	stmt, _ := ds.SelectStatement(Query{Columns: []*Column{name}, FirstRow: 2})
	if stmt != `SELECT "name" FROM "customers" LIMIT -1 OFFSET 1` {
		t.Fatalf("unexpected statement %s", stmt)
	}

	cursor, err := ds.Open(context.Background(), Query{Columns: []*Column{name, age}, FirstRow: 2, MaxRows: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, err := ReadAll(context.Background(), cursor)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "bob" || rows[0][1] != int64(42) {
		t.Fatalf("unexpected rows %v", rows)
	}
}
