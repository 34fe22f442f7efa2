package record_test

import (
	"testing"

	"github.com/calvinalkan/recordb/pkg/record"
)

func Test_Column_Definition_Renders_Type_And_Constraints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		col  record.Column
		want string
	}{
		{name: "plain text", col: record.Text(), want: "TEXT"},
		{name: "varchar", col: record.VarChar(), want: "VARCHAR(255)"},
		{name: "decimal", col: record.Decimal(), want: "DECIMAL(10,5)"},
		{name: "not null", col: record.Int(record.NotNull()), want: "INT NOT NULL"},
		{name: "unique", col: record.Text(record.Unique()), want: "TEXT UNIQUE"},
		{name: "default", col: record.Int(record.Default("0")), want: "INT DEFAULT 0"},
		{
			name: "all constraints",
			col:  record.Text(record.NotNull(), record.Default("'guest'"), record.Unique()),
			want: "TEXT NOT NULL DEFAULT 'guest' UNIQUE",
		},
		{name: "foreign key", col: record.ForeignKey("Team"), want: "INTEGER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.col.Definition()
			if got != tt.want {
				t.Fatalf("Definition() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_Column_Accessors_Report_Options_When_Constructed(t *testing.T) {
	t.Parallel()

	col := record.Real(record.NotNull(), record.Unique(), record.Default("1.5"))

	if col.Type() != record.TypeReal {
		t.Fatalf("Type() = %q, want %q", col.Type(), record.TypeReal)
	}

	if col.Nullable() {
		t.Fatal("Nullable() = true, want false")
	}

	if !col.IsUnique() {
		t.Fatal("IsUnique() = false, want true")
	}

	def, ok := col.DefaultValue()
	if !ok || def != "1.5" {
		t.Fatalf("DefaultValue() = (%q, %v), want (\"1.5\", true)", def, ok)
	}

	if _, ok := col.Reference(); ok {
		t.Fatal("Reference() ok = true for a non foreign key column")
	}
}

func Test_ForeignKey_Lowercases_Target_When_Declared(t *testing.T) {
	t.Parallel()

	col := record.ForeignKey("Team")

	ref, ok := col.Reference()
	if !ok || ref != "team" {
		t.Fatalf("Reference() = (%q, %v), want (\"team\", true)", ref, ok)
	}

	if col.Type() != record.TypeInteger {
		t.Fatalf("Type() = %q, want %q", col.Type(), record.TypeInteger)
	}
}

func Test_References_Targets_Model_Table_When_Model_Registered(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	team := registerTestModel(t, reg, "Team", record.Field{Name: "title", Column: record.Text()})

	col := record.References(team)

	ref, ok := col.Reference()
	if !ok || ref != "team" {
		t.Fatalf("Reference() = (%q, %v), want (\"team\", true)", ref, ok)
	}
}
