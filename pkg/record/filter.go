package record

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	OpEq      Op = "="
	OpNe      Op = "!="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpIn      Op = "IN"
	OpLike    Op = "LIKE"
	OpBetween Op = "BETWEEN"
)

// suffixSeparator splits a keyword condition into field and operator:
// "age__gte" compares age with >=.
const suffixSeparator = "__"

var suffixOps = map[string]Op{
	"eq":      OpEq,
	"lt":      OpLt,
	"lte":     OpLte,
	"gt":      OpGt,
	"gte":     OpGte,
	"n":       OpNe,
	"ne":      OpNe,
	"in":      OpIn,
	"like":    OpLike,
	"between": OpBetween,
}

// Reasons a condition is left out of a compiled predicate.
var (
	errUnknownOperator = errors.New("unknown operator suffix")
	errMalformedKey    = errors.New("malformed key")
	errInvalidField    = errors.New("invalid field name")
	errBetweenOperand  = errors.New("between needs at least two values")
	errUnsupportedType = errors.New("unsupported value type")
)

// Identifier is implemented by values that stand for a stored record.
// They render as their id in filters and foreign-key fields.
type Identifier interface {
	ID() int64
}

// Node is a filter condition: a comparison or a boolean combination of
// other nodes. Build nodes with [Where], [Cmp], [Match], [And], [Or] and [Not].
type Node interface {
	compile(c *compiler) (string, bool)
}

// Skipped describes a condition that was dropped from a compiled predicate.
type Skipped struct {
	Key    string
	Reason error
}

func (s Skipped) String() string {
	return s.Key + ": " + s.Reason.Error()
}

// Predicate is the result of compiling filter nodes.
type Predicate struct {
	// SQL is the boolean expression, without the WHERE keyword.
	SQL string

	// Skipped lists conditions that could not be compiled and were left out.
	Skipped []Skipped
}

// Comparison compares a field with a literal value.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

// malformed is a keyword condition that failed to parse. It compiles to
// nothing and records why.
type malformed struct {
	key    string
	reason error
}

type groupKind string

const (
	groupAnd groupKind = "AND"
	groupOr  groupKind = "OR"
	groupNot groupKind = "NOT"
)

type group struct {
	kind     groupKind
	children []Node
}

// Where builds a keyword condition. A plain key compares for equality; a key
// of the form "field__op" uses the operator named by the suffix:
// lt, lte, gt, gte, n (or ne), eq, in, like, between.
//
// Keys that do not parse are kept as a node that compiles to nothing and is
// reported in [Predicate.Skipped].
func Where(key string, value any) Node {
	lower := strings.ToLower(key)

	if !strings.Contains(lower, suffixSeparator) {
		return Comparison{Field: lower, Op: OpEq, Value: value}
	}

	parts := strings.Split(lower, suffixSeparator)
	if len(parts) != 2 {
		return malformed{key: key, reason: errMalformedKey}
	}

	op, ok := suffixOps[parts[1]]
	if !ok {
		return malformed{key: key, reason: fmt.Errorf("%w %q", errUnknownOperator, parts[1])}
	}

	return Comparison{Field: parts[0], Op: op, Value: value}
}

// Cmp builds a comparison with an explicit operator.
func Cmp(field string, op Op, value any) Node {
	return Comparison{Field: strings.ToLower(field), Op: op, Value: value}
}

// Match builds the conjunction of [Where] conditions for every key in
// conditions, in sorted key order.
func Match(conditions map[string]any) Node {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	nodes := make([]Node, len(keys))
	for i, k := range keys {
		nodes[i] = Where(k, conditions[k])
	}

	return And(nodes...)
}

// And matches when every child matches. An And without children is TRUE;
// one whose children were all dropped is dropped itself.
func And(children ...Node) Node { return group{kind: groupAnd, children: children} }

// Or matches when any child matches. An Or without children is FALSE;
// one whose children were all dropped is dropped itself.
func Or(children ...Node) Node { return group{kind: groupOr, children: children} }

// Not matches when the conjunction of its children does not. Like [And],
// it is dropped when all of its children were.
func Not(children ...Node) Node { return group{kind: groupNot, children: children} }

// Compile renders nodes as one predicate, conjoined with AND. No nodes, or
// only dropped ones, compile to TRUE.
func Compile(nodes ...Node) Predicate {
	c := &compiler{}

	sql := c.join(nodes, " AND ")
	if sql == "" {
		sql = "TRUE"
	}

	return Predicate{SQL: sql, Skipped: c.skipped}
}

type compiler struct {
	skipped []Skipped
}

func (c *compiler) skip(key string, reason error) {
	c.skipped = append(c.skipped, Skipped{Key: key, Reason: reason})
}

// join compiles nodes and joins the ones that produced SQL.
func (c *compiler) join(nodes []Node, sep string) string {
	parts := make([]string, 0, len(nodes))

	for _, n := range nodes {
		if n == nil {
			continue
		}

		sql, ok := n.compile(c)
		if ok {
			parts = append(parts, sql)
		}
	}

	return strings.Join(parts, sep)
}

func (m malformed) compile(c *compiler) (string, bool) {
	c.skip(m.key, m.reason)

	return "", false
}

// compile renders the group. A group whose children were all skipped is
// skipped too, so it drops out of its parent like a single bad condition.
// Only a group built without children renders a constant.
func (g group) compile(c *compiler) (string, bool) {
	sep := " AND "
	if g.kind == groupOr {
		sep = " OR "
	}

	before := len(c.skipped)

	inner := c.join(g.children, sep)
	if inner == "" && len(c.skipped) > before {
		return "", false
	}

	switch g.kind {
	case groupOr:
		if inner == "" {
			return "FALSE", true
		}

		return "(" + inner + ")", true
	case groupNot:
		if inner == "" {
			inner = "TRUE"
		}

		return "NOT (" + inner + ")", true
	default:
		if inner == "" {
			return "TRUE", true
		}

		return "(" + inner + ")", true
	}
}

func (cmp Comparison) compile(c *compiler) (string, bool) {
	key := cmp.Field
	if cmp.Op != OpEq {
		key += " " + string(cmp.Op)
	}

	if !isValidIdentifier(cmp.Field) {
		c.skip(key, errInvalidField)

		return "", false
	}

	sql, err := cmp.render()
	if err != nil {
		c.skip(key, err)

		return "", false
	}

	return sql, true
}

func (cmp Comparison) render() (string, error) {
	switch cmp.Op {
	case OpEq, OpNe:
		if isNil(cmp.Value) {
			if cmp.Op == OpEq {
				return cmp.Field + " IS NULL", nil
			}

			return cmp.Field + " IS NOT NULL", nil
		}

		fallthrough
	case OpLt, OpLte, OpGt, OpGte, OpLike:
		lit, err := Literal(cmp.Value)
		if err != nil {
			return "", err
		}

		return cmp.Field + " " + string(cmp.Op) + " " + lit, nil
	case OpIn:
		values := sequence(cmp.Value)
		lits := make([]string, len(values))

		for i, v := range values {
			lit, err := Literal(v)
			if err != nil {
				return "", err
			}

			lits[i] = lit
		}

		return cmp.Field + " IN (" + strings.Join(lits, ", ") + ")", nil
	case OpBetween:
		values := sequence(cmp.Value)
		if len(values) < 2 {
			return "", errBetweenOperand
		}

		start, err := Literal(values[0])
		if err != nil {
			return "", err
		}

		end, err := Literal(values[len(values)-1])
		if err != nil {
			return "", err
		}

		return cmp.Field + " BETWEEN " + start + " AND " + end, nil
	default:
		return "", fmt.Errorf("%w %q", errUnknownOperator, cmp.Op)
	}
}

// sequence flattens slices and arrays into []any. Any other value is a
// one-element sequence. Strings and byte slices are scalars.
func sequence(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	case string, []byte:
		return []any{v}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

// timeLayout is how time values are rendered, matching SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05"

var quoteEscaper = strings.NewReplacer(`'`, `''`)

// Literal renders v as a SQLite literal: strings are single-quoted with
// embedded quotes doubled, numbers and booleans are left unquoted, nil is
// NULL, byte slices are blob literals and times are quoted timestamps.
func Literal(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + quoteEscaper.Replace(v) + "'", nil
	case bool:
		if v {
			return "TRUE", nil
		}

		return "FALSE", nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'", nil
	case time.Time:
		return "'" + v.UTC().Format(timeLayout) + "'", nil
	case Identifier:
		if isNil(v) {
			return "NULL", nil
		}

		return strconv.FormatInt(v.ID(), 10), nil
	case fmt.Stringer:
		return "'" + quoteEscaper.Replace(v.String()) + "'", nil
	default:
		return "", fmt.Errorf("%w %T", errUnsupportedType, v)
	}
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", errUnsupportedType, f)
	}

	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}

	return s, nil
}
