package record

import "strings"

// SQLType is the declared SQL type of a column, rendered verbatim.
type SQLType string

// Supported column types.
const (
	TypeInt       SQLType = "INT"
	TypeInteger   SQLType = "INTEGER"
	TypeTinyInt   SQLType = "TINYINT"
	TypeSmallInt  SQLType = "SMALLINT"
	TypeMediumInt SQLType = "MEDIUMINT"
	TypeText      SQLType = "TEXT"
	TypeVarChar   SQLType = "VARCHAR(255)"
	TypeBlob      SQLType = "BLOB"
	TypeReal      SQLType = "REAL"
	TypeDouble    SQLType = "DOUBLE"
	TypeFloat     SQLType = "FLOAT"
	TypeNumeric   SQLType = "NUMERIC"
	TypeDecimal   SQLType = "DECIMAL(10,5)"
	TypeBoolean   SQLType = "BOOLEAN"
	TypeDate      SQLType = "DATE"
	TypeDateTime  SQLType = "DATETIME"
)

// Column describes one declared field: its type and constraints.
//
// Columns are values; the type is fixed by the constructor and cannot be
// changed afterwards. Bind a column to a name with [Field].
type Column struct {
	typ       SQLType
	nullable  bool
	unique    bool
	def       string
	hasDef    bool
	reference string
}

// ColumnOption configures a [Column] at construction.
type ColumnOption func(*Column)

// Unique adds a UNIQUE constraint.
func Unique() ColumnOption {
	return func(c *Column) { c.unique = true }
}

// NotNull adds a NOT NULL constraint.
func NotNull() ColumnOption {
	return func(c *Column) { c.nullable = false }
}

// Default sets the column default. sql is rendered verbatim, so string
// defaults must carry their own quotes: Default("'guest'").
func Default(sql string) ColumnOption {
	return func(c *Column) {
		c.def = sql
		c.hasDef = true
	}
}

func newColumn(typ SQLType, opts []ColumnOption) Column {
	c := Column{typ: typ, nullable: true}
	for _, opt := range opts {
		opt(&c)
	}

	return c
}

// Int declares an INT column.
func Int(opts ...ColumnOption) Column { return newColumn(TypeInt, opts) }

// Integer declares an INTEGER column.
func Integer(opts ...ColumnOption) Column { return newColumn(TypeInteger, opts) }

// TinyInt declares a TINYINT column.
func TinyInt(opts ...ColumnOption) Column { return newColumn(TypeTinyInt, opts) }

// SmallInt declares a SMALLINT column.
func SmallInt(opts ...ColumnOption) Column { return newColumn(TypeSmallInt, opts) }

// MediumInt declares a MEDIUMINT column.
func MediumInt(opts ...ColumnOption) Column { return newColumn(TypeMediumInt, opts) }

// Text declares a TEXT column.
func Text(opts ...ColumnOption) Column { return newColumn(TypeText, opts) }

// VarChar declares a VARCHAR(255) column.
func VarChar(opts ...ColumnOption) Column { return newColumn(TypeVarChar, opts) }

// Blob declares a BLOB column. Values read back stay []byte.
func Blob(opts ...ColumnOption) Column { return newColumn(TypeBlob, opts) }

// Real declares a REAL column.
func Real(opts ...ColumnOption) Column { return newColumn(TypeReal, opts) }

// Double declares a DOUBLE column.
func Double(opts ...ColumnOption) Column { return newColumn(TypeDouble, opts) }

// Float declares a FLOAT column.
func Float(opts ...ColumnOption) Column { return newColumn(TypeFloat, opts) }

// Numeric declares a NUMERIC column.
func Numeric(opts ...ColumnOption) Column { return newColumn(TypeNumeric, opts) }

// Decimal declares a DECIMAL(10,5) column.
func Decimal(opts ...ColumnOption) Column { return newColumn(TypeDecimal, opts) }

// Boolean declares a BOOLEAN column. Values read back are bool.
func Boolean(opts ...ColumnOption) Column { return newColumn(TypeBoolean, opts) }

// Date declares a DATE column. Values read back are time.Time.
func Date(opts ...ColumnOption) Column { return newColumn(TypeDate, opts) }

// DateTime declares a DATETIME column. Values read back are time.Time.
func DateTime(opts ...ColumnOption) Column { return newColumn(TypeDateTime, opts) }

// ForeignKey declares an INTEGER column referencing the id of another table.
// target is a record type name and is lowercased like table names are.
func ForeignKey(target string, opts ...ColumnOption) Column {
	c := newColumn(TypeInteger, opts)
	c.reference = strings.ToLower(target)

	return c
}

// References declares a foreign key to a registered model.
func References(m *Model, opts ...ColumnOption) Column {
	return ForeignKey(m.schema.table, opts...)
}

// Type returns the declared SQL type.
func (c Column) Type() SQLType { return c.typ }

// Nullable reports whether the column accepts NULL.
func (c Column) Nullable() bool { return c.nullable }

// IsUnique reports whether the column carries a UNIQUE constraint.
func (c Column) IsUnique() bool { return c.unique }

// DefaultValue returns the default SQL text, if one was declared.
func (c Column) DefaultValue() (string, bool) { return c.def, c.hasDef }

// Reference returns the referenced table of a foreign-key column.
func (c Column) Reference() (string, bool) { return c.reference, c.reference != "" }

// Definition renders the column type followed by its constraints, e.g.
// "TEXT NOT NULL UNIQUE" or "INT DEFAULT 0".
func (c Column) Definition() string {
	var b strings.Builder

	b.WriteString(string(c.typ))

	if !c.nullable {
		b.WriteString(" NOT NULL")
	}

	if c.hasDef {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.def)
	}

	if c.unique {
		b.WriteString(" UNIQUE")
	}

	return b.String()
}

// foreignKeyClause renders the table-level reference clause for a
// foreign-key column bound to name.
func (c Column) foreignKeyClause(name string) string {
	return "FOREIGN KEY (" + name + ") REFERENCES " + c.reference + " (id)"
}
