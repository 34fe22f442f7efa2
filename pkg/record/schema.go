package record

import (
	"fmt"
	"strings"
)

// idColumn is the implicit primary identity prepended to every schema.
// INTEGER PRIMARY KEY makes it SQLite's rowid alias, so the store assigns
// max(id)+1 (1 on an empty table) when an insert omits it.
const (
	idColumn     = "id"
	idDefinition = "INTEGER PRIMARY KEY UNIQUE NOT NULL"
)

// Field binds a declared column to its field name.
type Field struct {
	Name   string
	Column Column
}

// Schema is the resolved declaration of one record type: table name,
// backing store path and ordered columns. It is built once at registration
// and never changes afterwards.
type Schema struct {
	table   string
	path    string
	fields  []Field // includes the implicit id column at index 0
	index   map[string]int
	hasBlob bool
}

func newSchema(name, path string, declared []Field) (*Schema, error) {
	table := strings.ToLower(name)
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidName, name)
	}

	s := &Schema{
		table:  table,
		path:   path,
		fields: make([]Field, 0, len(declared)+1),
		index:  make(map[string]int, len(declared)+1),
	}

	s.fields = append(s.fields, Field{Name: idColumn, Column: Column{typ: TypeInteger}})
	s.index[idColumn] = 0

	for _, f := range declared {
		fieldName := strings.ToLower(f.Name)

		if !isValidIdentifier(fieldName) {
			return nil, fmt.Errorf("%w: column %q", ErrInvalidName, f.Name)
		}

		if _, ok := s.index[fieldName]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidName, fieldName)
		}

		if ref, ok := f.Column.Reference(); ok && !isValidIdentifier(ref) {
			return nil, fmt.Errorf("%w: foreign key target %q", ErrInvalidName, ref)
		}

		s.index[fieldName] = len(s.fields)
		s.fields = append(s.fields, Field{Name: fieldName, Column: f.Column})

		if f.Column.typ == TypeBlob {
			s.hasBlob = true
		}
	}

	return s, nil
}

// Table returns the backing table name.
func (s *Schema) Table() string { return s.table }

// Path returns the backing store file.
func (s *Schema) Path() string { return s.path }

// Columns returns all column names in declaration order, id first.
func (s *Schema) Columns() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}

	return names
}

// Has reports whether name is a declared column (id included).
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]

	return ok
}

// Column returns the descriptor of a declared column.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}

	return s.fields[i].Column, true
}

// Definitions returns "name TYPE constraints" for every column, id first.
func (s *Schema) Definitions() []string {
	defs := make([]string, len(s.fields))
	for i := range s.fields {
		defs[i] = s.definition(i)
	}

	return defs
}

func (s *Schema) definition(i int) string {
	f := s.fields[i]
	if i == 0 {
		return f.Name + " " + idDefinition
	}

	return f.Name + " " + f.Column.Definition()
}

// ForeignKeys returns the table-level reference clauses, in declaration order.
func (s *Schema) ForeignKeys() []string {
	var clauses []string

	for _, f := range s.fields {
		if _, ok := f.Column.Reference(); ok {
			clauses = append(clauses, f.Column.foreignKeyClause(f.Name))
		}
	}

	return clauses
}

// CreateTableSQL renders the CREATE TABLE statement used when the table is
// missing: every column definition followed by the foreign-key clauses.
func (s *Schema) CreateTableSQL() string {
	parts := append(s.Definitions(), s.ForeignKeys()...)

	return "CREATE TABLE IF NOT EXISTS " + s.table + " (" + strings.Join(parts, ", ") + ")"
}

// addColumnSQL renders the migration for a column missing from the live
// table. Foreign keys are added with an inline REFERENCES clause since
// table-level constraints cannot be added to an existing table.
func (s *Schema) addColumnSQL(name string) string {
	i := s.index[name]

	stmt := "ALTER TABLE " + s.table + " ADD COLUMN " + s.definition(i)
	if ref, ok := s.fields[i].Column.Reference(); ok {
		stmt += " REFERENCES " + ref + " (id)"
	}

	return stmt
}

func (s *Schema) dropColumnSQL(name string) string {
	return "ALTER TABLE " + s.table + " DROP COLUMN " + name
}

// orderFields sorts names by declaration order, reporting the first unknown one.
func (s *Schema) orderFields(names []string) ([]string, error) {
	positions := make([]int, 0, len(names))

	for _, name := range names {
		i, ok := s.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}

		positions = append(positions, i)
	}

	ordered := make([]string, 0, len(names))

	for i := range s.fields {
		for _, p := range positions {
			if p == i {
				ordered = append(ordered, s.fields[i].Name)

				break
			}
		}
	}

	return ordered, nil
}

// isValidIdentifier checks s is a lowercase SQL identifier ([a-z_][a-z0-9_]*).
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}

	return true
}
