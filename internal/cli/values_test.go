package cli

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_ParseValue_Types_Literals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want any
	}{
		{in: "null", want: nil},
		{in: "true", want: true},
		{in: "false", want: false},
		{in: "42", want: int64(42)},
		{in: "-3", want: int64(-3)},
		{in: "1.5", want: 1.5},
		{in: "Ann", want: "Ann"},
		{in: "'42'", want: "42"},
		{in: `"true"`, want: "true"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		got := parseValue(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("parseValue(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func Test_ParseAssignments_Splits_Lists_When_Key_Takes_Many(t *testing.T) {
	t.Parallel()

	values, keys, err := parseAssignments([]string{"age__between=20, 30", "name__in=Ann,Bo", "x=a=b"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}

	want := map[string]any{
		"age__between": []any{int64(20), int64(30)},
		"name__in":     []any{"Ann", "Bo"},
		"x":            "a=b",
	}

	if diff := cmp.Diff(want, values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"age__between", "name__in", "x"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	_, _, err = parseAssignments([]string{"=1"})
	if !errors.Is(err, errMissingAssignment) {
		t.Fatalf("err = %v, want %v", err, errMissingAssignment)
	}
}

func Test_ParseFieldSpec_Builds_Columns_When_Spec_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec string
		name string
		def  string
	}{
		{spec: "name:text", name: "name", def: "TEXT"},
		{spec: "email:TEXT:unique:notnull", name: "email", def: "TEXT NOT NULL UNIQUE"},
		{spec: "level:int:default=3", name: "level", def: "INT DEFAULT 3"},
		{spec: "team:fk=Team", name: "team", def: "INTEGER"},
	}

	for _, tt := range tests {
		f, err := parseFieldSpec(tt.spec)
		if err != nil {
			t.Fatalf("parseFieldSpec(%q): %v", tt.spec, err)
		}

		if f.Name != tt.name || f.Column.Definition() != tt.def {
			t.Fatalf("parseFieldSpec(%q) = %s %s, want %s %s", tt.spec, f.Name, f.Column.Definition(), tt.name, tt.def)
		}
	}

	f, _ := parseFieldSpec("team:fk=Team")
	if ref, ok := f.Column.Reference(); !ok || ref != "team" {
		t.Fatalf("Reference() = (%q, %v), want (\"team\", true)", ref, ok)
	}

	for _, bad := range []string{"name", ":text", "name:jsonb", "name:text:primary"} {
		if _, err := parseFieldSpec(bad); !errors.Is(err, errBadFieldSpec) {
			t.Fatalf("parseFieldSpec(%q) err = %v, want %v", bad, err, errBadFieldSpec)
		}
	}
}
