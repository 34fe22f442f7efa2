package record_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/recordb/pkg/record"
)

// -----------------------------------------------------------------------------
// Fixtures
// -----------------------------------------------------------------------------

const testFile = "records.db"

// personFields is the declaration used by most store tests.
func personFields() []record.Field {
	return []record.Field{
		{Name: "name", Column: record.Text()},
		{Name: "age", Column: record.Int()},
	}
}

type storeOption func(*record.Options)

func withStrictFilters() storeOption {
	return func(o *record.Options) { o.StrictFilters = true }
}

func withForeignKeys() storeOption {
	return func(o *record.Options) { o.ForeignKeys = true }
}

// newTestRegistry returns a registry whose files live in a per-test temp dir.
func newTestRegistry(t *testing.T, opts ...storeOption) (*record.Registry, string) {
	t.Helper()

	dir := t.TempDir()

	o := record.DefaultOptions()
	o.Dir = dir
	o.LockTimeoutMS = 2000

	for _, opt := range opts {
		opt(&o)
	}

	reg, err := record.NewRegistry(o)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	return reg, dir
}

// registerTestModel registers name with fields in the shared test file.
func registerTestModel(t *testing.T, reg *record.Registry, name string, fields ...record.Field) *record.Model {
	t.Helper()

	m, err := reg.RegisterIn(t.Context(), testFile, name, fields...)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}

	return m
}

// newPersonModel registers the "person" type in a fresh registry.
func newPersonModel(t *testing.T, opts ...storeOption) *record.Model {
	t.Helper()

	reg, _ := newTestRegistry(t, opts...)

	return registerTestModel(t, reg, "person", personFields()...)
}

func createTestRow(ctx context.Context, t *testing.T, m *record.Model, fields map[string]any) *record.Row {
	t.Helper()

	row, err := m.Create(ctx, fields)
	if err != nil {
		t.Fatalf("create %v: %v", fields, err)
	}

	return row
}

// seedAnnAndBo inserts the two canonical people: Ann (30) then Bo (25).
func seedAnnAndBo(t *testing.T, m *record.Model) (*record.Row, *record.Row) {
	t.Helper()

	ann := createTestRow(t.Context(), t, m, map[string]any{"name": "Ann", "age": 30})
	bo := createTestRow(t.Context(), t, m, map[string]any{"name": "Bo", "age": 25})

	return ann, bo
}

// names returns the "name" field of every row, in order.
func names(t *testing.T, rows *record.Rows) []string {
	t.Helper()

	out := make([]string, 0, rows.Count())

	for row := range rows.All() {
		v, ok := row.Get("name")
		if !ok {
			t.Fatalf("row %v has no name", row)
		}

		s, ok := v.(string)
		if !ok {
			t.Fatalf("name = %T, want string", v)
		}

		out = append(out, s)
	}

	return out
}

func storePath(dir string) string {
	return filepath.Join(dir, testFile)
}
