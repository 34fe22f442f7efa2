package cli

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/calvinalkan/recordb/pkg/record"
)

var (
	errMissingAssignment = errors.New("expected field=value")
	errBadFieldSpec      = errors.New("invalid field spec")
)

// parseValue converts command-line text into the value stored or compared:
// null, true/false, integers and floats are recognized; anything else is a
// string. Quote a value ('30' or "true") to keep it a string.
func parseValue(s string) any {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	switch s {
	case "null", "NULL":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}

	// nan and inf stay strings.
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}

	return s
}

// parseAssignments parses "field=value" arguments. Values of "__in" and
// "__between" keys are comma-separated lists.
func parseAssignments(args []string) (map[string]any, []string, error) {
	values := make(map[string]any, len(args))
	keys := make([]string, 0, len(args))

	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("%w: %q", errMissingAssignment, arg)
		}

		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}

		if strings.HasSuffix(key, "__in") || strings.HasSuffix(key, "__between") {
			parts := strings.Split(raw, ",")
			list := make([]any, len(parts))

			for i, p := range parts {
				list[i] = parseValue(strings.TrimSpace(p))
			}

			values[key] = list

			continue
		}

		values[key] = parseValue(raw)
	}

	return values, keys, nil
}

var columnTypes = map[string]func(...record.ColumnOption) record.Column{
	"int":       record.Int,
	"integer":   record.Integer,
	"tinyint":   record.TinyInt,
	"smallint":  record.SmallInt,
	"mediumint": record.MediumInt,
	"text":      record.Text,
	"varchar":   record.VarChar,
	"blob":      record.Blob,
	"real":      record.Real,
	"double":    record.Double,
	"float":     record.Float,
	"numeric":   record.Numeric,
	"decimal":   record.Decimal,
	"bool":      record.Boolean,
	"boolean":   record.Boolean,
	"date":      record.Date,
	"datetime":  record.DateTime,
}

// parseFieldSpec parses "name:type[:unique][:notnull][:default=SQL]".
// A type of "fk=<model>" declares a foreign key.
func parseFieldSpec(spec string) (record.Field, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || parts[0] == "" {
		return record.Field{}, fmt.Errorf("%w: %q (want name:type)", errBadFieldSpec, spec)
	}

	var opts []record.ColumnOption

	for _, mod := range parts[2:] {
		switch {
		case mod == "unique":
			opts = append(opts, record.Unique())
		case mod == "notnull":
			opts = append(opts, record.NotNull())
		case strings.HasPrefix(mod, "default="):
			opts = append(opts, record.Default(strings.TrimPrefix(mod, "default=")))
		default:
			return record.Field{}, fmt.Errorf("%w: %q: unknown modifier %q", errBadFieldSpec, spec, mod)
		}
	}

	typ := strings.ToLower(parts[1])

	if target, ok := strings.CutPrefix(typ, "fk="); ok {
		return record.Field{Name: parts[0], Column: record.ForeignKey(target, opts...)}, nil
	}

	newColumn, ok := columnTypes[typ]
	if !ok {
		return record.Field{}, fmt.Errorf("%w: %q: unknown type %q", errBadFieldSpec, spec, parts[1])
	}

	return record.Field{Name: parts[0], Column: newColumn(opts...)}, nil
}

// defaultFields is the declaration used when no --field flags are given.
func defaultFields() []record.Field {
	return []record.Field{
		{Name: "name", Column: record.Text(record.NotNull())},
		{Name: "age", Column: record.Int()},
		{Name: "email", Column: record.Text(record.Unique())},
	}
}
