package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResultConfig shapes the rows returned by a retrieval.
type ResultConfig struct {
	// Limit caps the number of rows. 0 means no limit.
	Limit int

	// OrderBy names the column to sort by. Empty means no ORDER BY clause,
	// regardless of Reverse.
	OrderBy string

	// Reverse sorts descending instead of ascending.
	Reverse bool
}

// clause renders " ORDER BY f ASC|DESC LIMIT n" for the parts that are set.
func (cfg ResultConfig) clause(s *Schema) (string, error) {
	var b strings.Builder

	if cfg.OrderBy != "" {
		orderBy := strings.ToLower(cfg.OrderBy)
		if !s.Has(orderBy) {
			return "", fmt.Errorf("order by: %w: %q", ErrUnknownColumn, cfg.OrderBy)
		}

		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)

		if cfg.Reverse {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	if cfg.Limit < 0 {
		return "", fmt.Errorf("limit must be >= 0, got %d", cfg.Limit)
	}

	if cfg.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(cfg.Limit))
	}

	return b.String(), nil
}

// buildSelect renders SELECT <fields|*> FROM t [WHERE where] [shaping].
func buildSelect(s *Schema, fields []string, where string, cfg ResultConfig) (string, error) {
	shaping, err := cfg.clause(s)
	if err != nil {
		return "", err
	}

	projection := "*"
	if len(fields) > 0 {
		projection = strings.Join(fields, ", ")
	}

	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(projection)
	b.WriteString(" FROM ")
	b.WriteString(s.table)

	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	b.WriteString(shaping)

	return b.String(), nil
}

// buildInsert renders INSERT OR IGNORE INTO t (cols) VALUES (lits).
// Duplicate-key conflicts insert nothing instead of failing.
func buildInsert(s *Schema, cols []string, values []any) (string, error) {
	lits := make([]string, len(values))

	for i, v := range values {
		lit, err := Literal(v)
		if err != nil {
			return "", fmt.Errorf("value for %s: %w", cols[i], err)
		}

		lits[i] = lit
	}

	return "INSERT OR IGNORE INTO " + s.table +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(lits, ", ") + ")", nil
}

// buildUpdate renders UPDATE t SET a = x, b = y WHERE <held-field equality>.
func buildUpdate(s *Schema, cols []string, values []any, held *Row) (string, error) {
	sets := make([]string, len(cols))

	for i, col := range cols {
		lit, err := Literal(values[i])
		if err != nil {
			return "", fmt.Errorf("value for %s: %w", col, err)
		}

		sets[i] = col + " = " + lit
	}

	where, err := identityCondition(held)
	if err != nil {
		return "", err
	}

	return "UPDATE " + s.table + " SET " + strings.Join(sets, ", ") + " WHERE " + where, nil
}

// buildDelete renders DELETE FROM t WHERE <held-field equality>.
func buildDelete(s *Schema, held *Row) (string, error) {
	where, err := identityCondition(held)
	if err != nil {
		return "", err
	}

	return "DELETE FROM " + s.table + " WHERE " + where, nil
}

// identityCondition is the conjunction of equality comparisons over every
// field the row currently holds. NULL-held fields compare with IS NULL and
// time values with [heldTime].
func identityCondition(r *Row) (string, error) {
	if len(r.cols) == 0 {
		return "", fmt.Errorf("%w: row holds no fields", ErrMalformedFilter)
	}

	nodes := make([]Node, len(r.cols))
	for i, col := range r.cols {
		if t, ok := r.vals[i].(time.Time); ok {
			nodes[i] = heldTime{field: col, t: t}

			continue
		}

		nodes[i] = Comparison{Field: col, Op: OpEq, Value: r.vals[i]}
	}

	pred := Compile(nodes...)
	if len(pred.Skipped) > 0 {
		return "", &FilterError{Skipped: pred.Skipped}
	}

	return pred.SQL, nil
}

// heldTime matches a stored date or time against a value the driver read
// back as time.Time. The driver accepts several text layouts and integer
// unix seconds or milliseconds, so the stored form is normalized in SQL:
// text through datetime(), integers by value.
type heldTime struct {
	field string
	t     time.Time
}

func (h heldTime) compile(c *compiler) (string, bool) {
	if !isValidIdentifier(h.field) {
		c.skip(h.field, errInvalidField)

		return "", false
	}

	lit := "'" + h.t.UTC().Format(timeLayout) + "'"

	return "(CASE typeof(" + h.field + ")" +
		" WHEN 'integer' THEN " + h.field + " IN (" +
		strconv.FormatInt(h.t.Unix(), 10) + ", " + strconv.FormatInt(h.t.UnixMilli(), 10) + ")" +
		" ELSE datetime(" + h.field + ") IS datetime(" + lit + ") END)", true
}

// aggregate is a single-column aggregate function.
type aggregate string

const (
	aggMax   aggregate = "MAX"
	aggMin   aggregate = "MIN"
	aggAvg   aggregate = "AVG"
	aggSum   aggregate = "SUM"
	aggCount aggregate = "COUNT"
)

// buildAggregate renders SELECT FN(col) FROM t. COUNT always counts rows.
func buildAggregate(s *Schema, fn aggregate, column string) string {
	if fn == aggCount {
		return "SELECT COUNT(1) FROM " + s.table
	}

	return "SELECT " + string(fn) + "(" + column + ") FROM " + s.table
}

func buildDropTable(s *Schema) string {
	return "DROP TABLE " + s.table
}
