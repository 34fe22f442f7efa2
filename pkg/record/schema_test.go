package record

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_NewSchema_Prepends_Identity_When_Fields_Declared(t *testing.T) {
	t.Parallel()

	s, err := newSchema("Person", "/tmp/x.db", []Field{
		{Name: "Name", Column: Text(NotNull())},
		{Name: "age", Column: Int()},
	})
	if err != nil {
		t.Fatalf("newSchema: %v", err)
	}

	if s.Table() != "person" {
		t.Fatalf("Table() = %q, want %q", s.Table(), "person")
	}

	if diff := cmp.Diff([]string{"id", "name", "age"}, s.Columns()); diff != "" {
		t.Fatalf("Columns() mismatch (-want +got):\n%s", diff)
	}

	wantDefs := []string{
		"id INTEGER PRIMARY KEY UNIQUE NOT NULL",
		"name TEXT NOT NULL",
		"age INT",
	}

	if diff := cmp.Diff(wantDefs, s.Definitions()); diff != "" {
		t.Fatalf("Definitions() mismatch (-want +got):\n%s", diff)
	}
}

func Test_NewSchema_Returns_Error_When_Names_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		table  string
		fields []Field
	}{
		{name: "empty table", table: ""},
		{name: "table with space", table: "my table"},
		{name: "table starting with digit", table: "1person"},
		{name: "column with dash", table: "person", fields: []Field{{Name: "first-name", Column: Text()}}},
		{name: "duplicate column", table: "person", fields: []Field{
			{Name: "name", Column: Text()},
			{Name: "NAME", Column: Text()},
		}},
		{name: "explicit id", table: "person", fields: []Field{{Name: "id", Column: Int()}}},
		{name: "bad reference", table: "person", fields: []Field{{Name: "team", Column: ForeignKey("team x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newSchema(tt.table, "x.db", tt.fields)
			if !errors.Is(err, ErrInvalidName) {
				t.Fatalf("err = %v, want %v", err, ErrInvalidName)
			}
		})
	}
}

func Test_CreateTableSQL_Appends_Foreign_Keys_When_Declared(t *testing.T) {
	t.Parallel()

	s, err := newSchema("member", "x.db", []Field{
		{Name: "name", Column: Text(Unique())},
		{Name: "team", Column: ForeignKey("team")},
	})
	if err != nil {
		t.Fatalf("newSchema: %v", err)
	}

	want := "CREATE TABLE IF NOT EXISTS member (" +
		"id INTEGER PRIMARY KEY UNIQUE NOT NULL, name TEXT UNIQUE, team INTEGER, " +
		"FOREIGN KEY (team) REFERENCES team (id))"

	if got := s.CreateTableSQL(); got != want {
		t.Fatalf("CreateTableSQL() =\n%s\nwant\n%s", got, want)
	}

	if got, want := s.addColumnSQL("team"), "ALTER TABLE member ADD COLUMN team INTEGER REFERENCES team (id)"; got != want {
		t.Fatalf("addColumnSQL(team) = %q, want %q", got, want)
	}

	if got, want := s.dropColumnSQL("nickname"), "ALTER TABLE member DROP COLUMN nickname"; got != want {
		t.Fatalf("dropColumnSQL = %q, want %q", got, want)
	}
}

func Test_OrderFields_Sorts_By_Declaration_When_Names_Shuffled(t *testing.T) {
	t.Parallel()

	s, err := newSchema("t", "x.db", []Field{
		{Name: "a", Column: Text()},
		{Name: "b", Column: Text()},
		{Name: "c", Column: Text()},
	})
	if err != nil {
		t.Fatalf("newSchema: %v", err)
	}

	got, err := s.orderFields([]string{"c", "id", "a"})
	if err != nil {
		t.Fatalf("orderFields: %v", err)
	}

	if diff := cmp.Diff([]string{"id", "a", "c"}, got); diff != "" {
		t.Fatalf("orderFields mismatch (-want +got):\n%s", diff)
	}

	_, err = s.orderFields([]string{"a", "zzz"})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("err = %v, want %v", err, ErrUnknownColumn)
	}
}
