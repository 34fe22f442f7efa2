package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recordb/pkg/record"
)

const (
	defaultModel = "person"
	defaultFile  = "recordb.db"
	configEnvVar = "RECORDB_CONFIG"
)

// Run is the main entry point. Returns exit code.
//
// args[0] is the program name. sigCh, if not nil, cancels the running
// command on the first signal.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(out, errOut)

	global := flag.NewFlagSet("recordb", flag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)

	configPath := global.StringP("config", "c", "", "Load options from JSONC `file`")
	dir := global.StringP("dir", "C", "", "Store files in `dir`")
	model := global.StringP("model", "m", defaultModel, "Record type `name` (table)")
	fieldSpecs := global.StringArrayP("field", "f", nil, "Declare a field as `name:type[:unique][:notnull][:default=SQL]`")
	strict := global.Bool("strict", false, "Fail filters with unknown operators instead of ignoring them")
	trace := global.Bool("trace", false, "Echo every statement to stderr")

	if len(args) < 2 {
		printUsage(o, global)

		return 0
	}

	err := global.Parse(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(o, global)

			return 0
		}

		o.ErrPrintln("error:", err)

		return 1
	}

	rest := global.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(o, global)

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if *configPath == "" {
		*configPath = env[configEnvVar]
	}

	opts, err := resolveOptions(*configPath, *dir, *strict)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	if *trace {
		opts.Trace = errOut
	}

	fields := defaultFields()

	if len(*fieldSpecs) > 0 {
		fields = fields[:0]

		for _, spec := range *fieldSpecs {
			f, specErr := parseFieldSpec(spec)
			if specErr != nil {
				o.ErrPrintln("error:", specErr)

				return 1
			}

			fields = append(fields, f)
		}
	}

	s, err := openSession(ctx, opts, *model, fields)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	name, cmdArgs := rest[0], rest[1:]

	if name == "shell" {
		err = runShell(ctx, o, s, newLinerPrompter(env))
		if err != nil {
			o.ErrPrintln("error:", err)

			return 1
		}

		return o.Finish()
	}

	cmd := s.find(name)
	if cmd == nil {
		o.ErrPrintln("error: unknown command:", name)
		printUsage(o, global)

		return 1
	}

	code := cmd.Run(ctx, o, cmdArgs)
	if code != 0 {
		return code
	}

	return o.Finish()
}

func resolveOptions(configPath, dir string, strict bool) (record.Options, error) {
	opts := record.DefaultOptions()

	if configPath != "" {
		loaded, err := record.LoadOptions(configPath)
		if err != nil {
			return record.Options{}, err
		}

		opts = loaded
	}

	if dir != "" {
		opts.Dir = dir
	}

	if strict {
		opts.StrictFilters = true
	}

	if opts.File == "" {
		opts.File = defaultFile
	}

	return opts, nil
}

func openSession(ctx context.Context, opts record.Options, model string, fields []record.Field) (*session, error) {
	reg, err := record.NewRegistry(opts)
	if err != nil {
		return nil, err
	}

	m, err := reg.Register(ctx, model, fields...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Join(opts.Dir, opts.File), err)
	}

	return &session{model: m}, nil
}

func printUsage(o *IO, global *flag.FlagSet) {
	o.Println(`recordb - playground for the record data layer

Usage: recordb [options] <command> [args]

Options:`)
	o.Printf("%s", global.FlagUsages())
	o.Println()
	o.Println("Commands:")

	s := &session{}
	for _, c := range s.commands() {
		o.Println(c.HelpLine())
	}

	o.Printf("  %-30s %s\n", "shell", "Interactive prompt running the commands above")
}
