package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recordb/pkg/record"
)

// session is the model every command of one invocation (or shell) works on.
type session struct {
	model *record.Model
}

var (
	errMissingID      = errors.New("missing id")
	errRecordNotFound = errors.New("no record with that id")
	errUnknownAgg     = errors.New("unknown aggregate (want max|min|avg|sum)")
	errNoAssignments  = errors.New("nothing to do: pass field=value arguments")
)

// commands returns fresh command instances bound to s. Flag state is per
// instance, so callers build a new set for every command line.
func (s *session) commands() []*Command {
	return []*Command{
		s.createCmd(),
		s.lsCmd(),
		s.filterCmd(),
		s.firstCmd(),
		s.lastCmd(),
		s.countCmd(),
		s.aggCmd(),
		s.updateCmd(),
		s.rmCmd(),
		s.dropCmd(),
		s.migrateCmd(),
		s.schemaCmd(),
		s.queriesCmd(),
	}
}

func (s *session) find(name string) *Command {
	for _, c := range s.commands() {
		if c.Matches(name) {
			return c
		}
	}

	return nil
}

func (s *session) createCmd() *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "create <field=value>...",
		Short: "Insert a record",
		Long: "Insert a record and print it with its assigned id.\n" +
			"Values: null, true/false and numbers are typed; quote to force a string.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			fields, _, err := parseAssignments(args)
			if err != nil {
				return err
			}

			row, err := s.model.Create(ctx, fields)
			if err != nil {
				return err
			}

			o.Println(row)

			return nil
		},
	}
}

// shapingFlags registers the result-shaping flags shared by ls and filter.
func shapingFlags(fs *flag.FlagSet) {
	fs.StringP("order", "o", "", "Order by `field`")
	fs.BoolP("desc", "r", false, "Reverse the order")
	fs.IntP("limit", "n", 0, "Maximum rows (0 = all)")
}

func resultConfig(fs *flag.FlagSet) record.ResultConfig {
	order, _ := fs.GetString("order")
	desc, _ := fs.GetBool("desc")
	limit, _ := fs.GetInt("limit")

	return record.ResultConfig{OrderBy: order, Reverse: desc, Limit: limit}
}

func printRows(o *IO, rows *record.Rows) {
	for row := range rows.All() {
		o.Println(row)
	}

	o.Printf("(%d rows)\n", rows.Count())
}

func (s *session) lsCmd() *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	shapingFlags(fs)
	fs.String("fields", "", "Comma-separated `list` of fields to show")

	return &Command{
		Flags:   fs,
		Usage:   "ls [flags]",
		Aliases: []string{"list"},
		Short:   "List records",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			cfg := resultConfig(fs)

			fields, _ := fs.GetString("fields")

			var (
				rows *record.Rows
				err  error
			)

			if fields == "" {
				rows, err = s.model.All(ctx, cfg)
			} else {
				rows, err = s.model.Get(ctx, strings.Split(fields, ","), cfg)
			}

			if err != nil {
				return err
			}

			printRows(o, rows)

			return nil
		},
	}
}

func (s *session) filterCmd() *Command {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	shapingFlags(fs)
	fs.Bool("any", false, "Match records satisfying any condition (OR)")
	fs.Bool("not", false, "Negate the combined condition")

	return &Command{
		Flags: fs,
		Usage: "filter <field[__op]=value>... [flags]",
		Short: "List records matching conditions",
		Long: "List records matching every condition (or any, with --any).\n" +
			"Operators: lt, lte, gt, gte, n, ne, eq, in, like, between.\n" +
			"in and between take comma-separated values: age__between=20,30",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			values, keys, err := parseAssignments(args)
			if err != nil {
				return err
			}

			nodes := make([]record.Node, len(keys))
			for i, k := range keys {
				nodes[i] = record.Where(k, values[k])
			}

			var node record.Node

			if anyOf, _ := fs.GetBool("any"); anyOf {
				node = record.Or(nodes...)
			} else {
				node = record.And(nodes...)
			}

			if negate, _ := fs.GetBool("not"); negate {
				node = record.Not(node)
			}

			rows, err := s.model.Filter(ctx, resultConfig(fs), node)
			if err != nil {
				return err
			}

			for _, skipped := range rows.Skipped() {
				o.Warn("condition ignored: %s", skipped)
			}

			printRows(o, rows)

			return nil
		},
	}
}

func (s *session) firstCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("first", flag.ContinueOnError),
		Usage: "first",
		Short: "Show the record with id 1",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			row, err := s.model.First(ctx)
			if err != nil {
				return err
			}

			printOptionalRow(o, row)

			return nil
		},
	}
}

func (s *session) lastCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("last", flag.ContinueOnError),
		Usage: "last",
		Short: "Show the record with the highest id",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			row, err := s.model.Last(ctx)
			if err != nil {
				return err
			}

			printOptionalRow(o, row)

			return nil
		},
	}
}

func printOptionalRow(o *IO, row *record.Row) {
	if row == nil {
		o.Println("(none)")

		return
	}

	o.Println(row)
}

func printScalar(o *IO, v record.Scalar, ok bool) {
	if !ok {
		o.Println("(none)")

		return
	}

	o.Printf("%s: %v\n", v.Key, v.Value)
}

func (s *session) countCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("count", flag.ContinueOnError),
		Usage: "count",
		Short: "Count records",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			v, ok, err := s.model.Count(ctx)
			if err != nil {
				return err
			}

			printScalar(o, v, ok)

			return nil
		},
	}
}

func (s *session) aggCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("agg", flag.ContinueOnError),
		Usage: "agg <max|min|avg|sum> <field>",
		Short: "Aggregate a field",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("usage: agg <max|min|avg|sum> <field>")
			}

			fns := map[string]func(context.Context, string) (record.Scalar, bool, error){
				"max": s.model.Max,
				"min": s.model.Min,
				"avg": s.model.Avg,
				"sum": s.model.Sum,
			}

			fn, ok := fns[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("%w: %s", errUnknownAgg, args[0])
			}

			v, ok, err := fn(ctx, args[1])
			if err != nil {
				return err
			}

			printScalar(o, v, ok)

			return nil
		},
	}
}

// rowByID loads the record with the given id argument.
func (s *session) rowByID(ctx context.Context, arg string) (*record.Row, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", arg, err)
	}

	rows, err := s.model.Filter(ctx, record.ResultConfig{Limit: 1}, record.Where("id", id))
	if err != nil {
		return nil, err
	}

	row := rows.First()
	if row == nil {
		return nil, fmt.Errorf("%w: %d", errRecordNotFound, id)
	}

	return row, nil
}

func (s *session) updateCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("update", flag.ContinueOnError),
		Usage: "update <id> <field=value>...",
		Short: "Change fields of a record",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errMissingID
			}

			if len(args) == 1 {
				return errNoAssignments
			}

			changes, _, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			row, err := s.rowByID(ctx, args[0])
			if err != nil {
				return err
			}

			err = row.Update(ctx, changes)
			if err != nil {
				return err
			}

			o.Println(row)

			return nil
		},
	}
}

func (s *session) rmCmd() *Command {
	return &Command{
		Flags:   flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage:   "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Remove records",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errMissingID
			}

			for _, arg := range args {
				row, err := s.rowByID(ctx, arg)
				if err != nil {
					return err
				}

				err = row.Remove(ctx)
				if err != nil {
					return err
				}

				o.Println("removed", row)
			}

			return nil
		},
	}
}

func (s *session) dropCmd() *Command {
	fs := flag.NewFlagSet("drop", flag.ContinueOnError)
	fs.Bool("yes", false, "Confirm dropping the table")

	return &Command{
		Flags: fs,
		Usage: "drop --yes",
		Short: "Drop the table",
		Long:  "Drop the backing table and all its records. The next command recreates it empty.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if yes, _ := fs.GetBool("yes"); !yes {
				return errors.New("refusing to drop without --yes")
			}

			err := s.model.DropTable(ctx)
			if err != nil {
				return err
			}

			o.Println("dropped", s.model.Schema().Table())

			return nil
		},
	}
}

func (s *session) migrateCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("migrate", flag.ContinueOnError),
		Usage: "migrate",
		Short: "Reconcile the table with the declared fields",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			mig, err := s.model.Reconcile(ctx)
			if err != nil {
				return err
			}

			if !mig.Changed() {
				o.Println("up to date")

				return nil
			}

			for _, stmt := range mig.Statements {
				o.Println(stmt)
			}

			return nil
		},
	}
}

func (s *session) schemaCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("schema", flag.ContinueOnError),
		Usage: "schema",
		Short: "Show the declared table",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			schema := s.model.Schema()

			o.Println("file: ", schema.Path())
			o.Println("table:", schema.Table())

			for _, def := range schema.Definitions() {
				o.Println("  " + def)
			}

			for _, fk := range schema.ForeignKeys() {
				o.Println("  " + fk)
			}

			return nil
		},
	}
}

func (s *session) queriesCmd() *Command {
	fs := flag.NewFlagSet("queries", flag.ContinueOnError)
	fs.String("out", "", "Write the statements to `file` instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "queries [--out file]",
		Short: "Show statements executed so far",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			if out, _ := fs.GetString("out"); out != "" {
				return s.model.Log().WriteFile(out)
			}

			if s.model.Log().Len() == 0 {
				o.Println("(none)")

				return nil
			}

			o.Println(s.model.Queries())

			return nil
		},
	}
}
