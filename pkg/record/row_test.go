package record_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordb/pkg/record"
)

func Test_Update_Issues_No_Statement_When_Changes_Empty(t *testing.T) {
	t.Parallel()

	m := newPersonModel(t)
	ann, _ := seedAnnAndBo(t, m)

	before := m.Log().Len()
	want := ann.Map()

	require.NoError(t, ann.Update(t.Context(), nil))
	require.NoError(t, ann.Update(t.Context(), map[string]any{}))

	assert.Equal(t, before, m.Log().Len(), "empty update must not write")
	assert.Empty(t, cmp.Diff(want, ann.Map()), "row must not change")
}

func Test_Update_Refreshes_Row_From_Store_When_Changes_Applied(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	m := registerTestModel(t, reg, "person",
		record.Field{Name: "name", Column: record.Text()},
		record.Field{Name: "age", Column: record.Int()},
		record.Field{Name: "city", Column: record.Text(record.Default("'Graz'"))},
	)

	ann := createTestRow(t.Context(), t, m, map[string]any{"name": "Ann", "age": 30})
	assert.Equal(t, []string{"id", "name", "age"}, ann.Fields(), "created row holds what was inserted")

	require.NoError(t, ann.Update(t.Context(), map[string]any{"AGE": 31}))

	want := map[string]any{"id": int64(1), "name": "Ann", "age": int64(31), "city": "Graz"}
	assert.Empty(t, cmp.Diff(want, ann.Map()), "row should hold the stored state")

	stmts := m.Log().Statements()
	assert.Equal(t, "UPDATE person SET age = 31 WHERE id = 1 AND name = 'Ann' AND age = 30", stmts[len(stmts)-2])
	assert.Equal(t, "SELECT * FROM person WHERE id = 1", stmts[len(stmts)-1])

	stored, err := m.Last(t.Context())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(ann.Map(), stored.Map()))
}

func Test_Update_Returns_ErrNotFound_When_Row_Removed(t *testing.T) {
	t.Parallel()

	m := newPersonModel(t)
	ann, bo := seedAnnAndBo(t, m)

	require.NoError(t, ann.Remove(t.Context()))

	err := ann.Update(t.Context(), map[string]any{"age": 40})
	require.ErrorIs(t, err, record.ErrNotFound)

	age, _ := ann.Get("age")
	assert.Equal(t, 30, age, "failed update leaves the row unchanged")

	err = bo.Update(t.Context(), map[string]any{"height": 1})
	require.ErrorIs(t, err, record.ErrUnknownColumn)
}

func Test_Update_Merges_Locally_When_Row_Has_No_Identity(t *testing.T) {
	t.Parallel()

	m := newPersonModel(t)
	seedAnnAndBo(t, m)

	rows, err := m.Get(t.Context(), []string{"name"}, record.ResultConfig{OrderBy: "name"})
	require.NoError(t, err)

	bo := rows.Last()
	require.NoError(t, bo.Update(t.Context(), map[string]any{"age": 26}))

	want := map[string]any{"name": "Bo", "age": 26}
	assert.Empty(t, cmp.Diff(want, bo.Map()))

	maxAge, _, err := m.Max(t.Context(), "age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), maxAge.Value)

	minAge, _, err := m.Min(t.Context(), "age")
	require.NoError(t, err)
	assert.Equal(t, int64(26), minAge.Value)
}

func Test_Remove_Deletes_Row_When_Fields_Match(t *testing.T) {
	t.Parallel()

	m := newPersonModel(t)
	ann, _ := seedAnnAndBo(t, m)

	require.NoError(t, ann.Remove(t.Context()))

	rows, err := m.All(t.Context(), record.ResultConfig{})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]string{"Bo"}, names(t, rows)))

	name, ok := ann.Get("name")
	assert.True(t, ok, "removed row keeps its values")
	assert.Equal(t, "Ann", name)

	require.NoError(t, ann.Remove(t.Context()), "removing twice matches nothing")
}

func Test_Rows_Accessors_Handle_Bounds_When_Empty_Or_Full(t *testing.T) {
	t.Parallel()

	m := newPersonModel(t)

	empty, err := m.All(t.Context(), record.ResultConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count())
	assert.Nil(t, empty.First())
	assert.Nil(t, empty.Last())
	assert.Nil(t, empty.At(0))
	assert.Empty(t, empty.Slice())

	seedAnnAndBo(t, m)

	rows, err := m.All(t.Context(), record.ResultConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Ann", mustGet(t, rows.At(0), "name"))
	assert.Equal(t, "Bo", mustGet(t, rows.At(1), "name"))
	assert.Nil(t, rows.At(2))
	assert.Nil(t, rows.At(-1))

	// Iteration is restartable.
	assert.Equal(t, names(t, rows), names(t, rows))

	for range rows.All() {
		break
	}

	assert.Len(t, rows.Slice(), 2)
}

func Test_Materialize_Keeps_Declared_Types_When_Read_Back(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	m := registerTestModel(t, reg, "sample",
		record.Field{Name: "label", Column: record.VarChar()},
		record.Field{Name: "payload", Column: record.Blob()},
		record.Field{Name: "ratio", Column: record.Real()},
		record.Field{Name: "active", Column: record.Boolean()},
		record.Field{Name: "seen", Column: record.DateTime()},
	)

	seen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	created := createTestRow(t.Context(), t, m, map[string]any{
		"label":   "it's",
		"payload": []byte{1, 2, 3},
		"ratio":   0.25,
		"active":  true,
		"seen":    seen,
	})

	row, err := m.First(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "it's", mustGet(t, row, "label"))
	assert.Equal(t, []byte{1, 2, 3}, mustGet(t, row, "payload"))
	assert.InDelta(t, 0.25, mustGet(t, row, "ratio"), 1e-9)
	assert.Equal(t, true, mustGet(t, row, "active"))
	assert.True(t, seen.Equal(mustGet(t, row, "seen").(time.Time)), "seen = %v", mustGet(t, row, "seen"))

	// The created row still identifies the stored one.
	require.NoError(t, created.Update(t.Context(), map[string]any{"ratio": 0.5}))
	assert.InDelta(t, 0.5, mustGet(t, created, "ratio"), 1e-9)
}

func mustGet(t *testing.T, row *record.Row, name string) any {
	t.Helper()

	require.NotNil(t, row)

	v, ok := row.Get(name)
	require.True(t, ok, "row %v has no field %s", row, name)

	return v
}

func Test_Update_And_Remove_Match_Fetched_Row_When_Time_Columns_Read_Back(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		day  any
		at   any
	}{
		{name: "date only", day: "2024-01-02", at: "2024-01-02 03:04:05"},
		{name: "iso utc", day: "2024-01-02", at: "2024-01-02T03:04:05Z"},
		{name: "minutes and fraction", day: "2024-01-02 00:00", at: "2024-01-02 03:04:05.250"},
		{name: "offset", day: "2024-01-02", at: "2024-01-02T05:04:05+02:00"},
		{name: "unix seconds", day: "2024-01-02", at: int64(1704164645)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg, _ := newTestRegistry(t)
			m := registerTestModel(t, reg, "event",
				record.Field{Name: "title", Column: record.Text()},
				record.Field{Name: "day", Column: record.Date()},
				record.Field{Name: "at", Column: record.DateTime()},
			)

			createTestRow(t.Context(), t, m, map[string]any{"title": "a", "day": tt.day, "at": tt.at})

			row, err := m.First(t.Context())
			require.NoError(t, err)

			day, isTime := mustGet(t, row, "day").(time.Time)
			require.True(t, isTime, "day = %T", mustGet(t, row, "day"))
			assert.True(t, day.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), "day = %v", day)

			require.NoError(t, row.Update(t.Context(), map[string]any{"title": "b"}))
			assert.Equal(t, "b", mustGet(t, row, "title"))

			require.NoError(t, row.Remove(t.Context()))

			count, _, err := m.Count(t.Context())
			require.NoError(t, err)
			assert.Equal(t, int64(0), count.Value, "fetched row must be removed")
		})
	}
}
