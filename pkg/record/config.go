package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// Options configures a [Registry]. Every model registered through the same
// registry shares them.
type Options struct {
	// Dir is the directory holding backing store files. Created if missing.
	// Default: current directory.
	Dir string `json:"dir"`

	// File overrides the backing store file name. Relative names are joined
	// with Dir. Default: the base name of the Go file that calls
	// [Registry.Register], with ".go" replaced by ".db".
	File string `json:"file,omitempty"`

	// StrictFilters makes [Model.Filter] fail with [*FilterError] instead of
	// dropping conditions it cannot compile.
	StrictFilters bool `json:"strict_filters"` //nolint:tagliatelle // snake_case for config file

	// ForeignKeys turns on SQLite foreign-key enforcement for every connection.
	ForeignKeys bool `json:"foreign_keys"` //nolint:tagliatelle // snake_case for config file

	// BusyTimeoutMS is how long SQLite waits on a locked database before
	// failing with SQLITE_BUSY. Default: 5000.
	BusyTimeoutMS int `json:"busy_timeout_ms"` //nolint:tagliatelle // snake_case for config file

	// LockTimeoutMS is the max wait for the cross-process writer lock.
	// Default: 5000.
	LockTimeoutMS int `json:"lock_timeout_ms"` //nolint:tagliatelle // snake_case for config file

	// Trace, if set, receives every executed statement on its own line.
	Trace io.Writer `json:"-"`
}

const (
	defaultBusyTimeoutMS = 5000
	defaultLockTimeoutMS = 5000
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errNegativeTimeout    = errors.New("timeouts cannot be negative")
)

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Dir:           ".",
		BusyTimeoutMS: defaultBusyTimeoutMS,
		LockTimeoutMS: defaultLockTimeoutMS,
	}
}

// LoadOptions reads a JSONC (JSON with comments and trailing commas) options
// file and merges it over [DefaultOptions]. The file must exist.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return Options{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Options{}, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	fileOpts, err := parseOptions(data)
	if err != nil {
		return Options{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	// A relative dir in the file is relative to the file, not the process.
	if fileOpts.Dir != "" && !filepath.IsAbs(fileOpts.Dir) {
		fileOpts.Dir = filepath.Join(filepath.Dir(path), fileOpts.Dir)
	}

	opts := mergeOptions(DefaultOptions(), fileOpts)

	err = opts.validate()
	if err != nil {
		return Options{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return opts, nil
}

func parseOptions(data []byte) (Options, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Options{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var opts Options

	err = json.Unmarshal(standardized, &opts)
	if err != nil {
		return Options{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return opts, nil
}

func mergeOptions(base, overlay Options) Options {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.File != "" {
		base.File = overlay.File
	}

	if overlay.StrictFilters {
		base.StrictFilters = true
	}

	if overlay.ForeignKeys {
		base.ForeignKeys = true
	}

	if overlay.BusyTimeoutMS != 0 {
		base.BusyTimeoutMS = overlay.BusyTimeoutMS
	}

	if overlay.LockTimeoutMS != 0 {
		base.LockTimeoutMS = overlay.LockTimeoutMS
	}

	if overlay.Trace != nil {
		base.Trace = overlay.Trace
	}

	return base
}

func (o Options) validate() error {
	if o.BusyTimeoutMS < 0 || o.LockTimeoutMS < 0 {
		return errNegativeTimeout
	}

	return nil
}

// withDefaults fills zero values from [DefaultOptions].
func (o Options) withDefaults() Options {
	return mergeOptions(DefaultOptions(), o)
}

func (o Options) lockTimeout() time.Duration {
	return time.Duration(o.LockTimeoutMS) * time.Millisecond
}
