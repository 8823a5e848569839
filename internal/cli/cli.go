// Package cli parses the eelsfit command line into an app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/app"
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// varFlags collects repeated -var name=value flags. Values that parse as
// numbers become cty numbers, everything else a cty string.
type varFlags map[string]cty.Value

func (v varFlags) String() string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}

	return strings.Join(names, ",")
}

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("variable %q is not name=value", s)
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		v[name] = cty.NumberFloatVal(f)
	} else {
		v[name] = cty.StringVal(value)
	}

	return nil
}

// Parse processes command-line arguments. It returns the configuration, a
// flag telling the caller to exit cleanly, or an *ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("eelsfit", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
eelsfit - constrained multi-component fitting of EELS spectrum images.

Usage:
  eelsfit [options] -plan PLAN_FILE SIGNAL_ARCHIVE
  eelsfit -catalogue DB -list [-name NAME]

Arguments:
  SIGNAL_ARCHIVE
    Spectrum image saved with archive.SaveSignal.

Options:
`)
		flagSet.PrintDefaults()
	}

	vars := varFlags{}
	planFlag := flagSet.String("plan", "", "Path to the HCL fit plan.")
	lowLossFlag := flagSet.String("low-loss", "", "Path to a low-loss signal archive used for convolution.")
	outFlag := flagSet.String("out", "", "Path of the fitted model archive to write.")
	catalogueFlag := flagSet.String("catalogue", "", "Path to a SQLite catalogue of fitted models.")
	nameFlag := flagSet.String("name", "", "Catalogue record name. Defaults to the signal path.")
	listFlag := flagSet.Bool("list", false, "List the catalogue and exit.")
	workersFlag := flagSet.Int("workers", 0, "Number of fit workers. 0 uses GOMAXPROCS.")
	compressionFlag := flagSet.String("compression", "zstd", "Model archive compression. Options: 'none', 'zstd', 's2', 'lz4'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.Var(vars, "var", "Plan variable as name=value, exposed as var.name. Repeatable.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	signalPath := flagSet.Arg(0)
	if !*listFlag && signalPath == "" && *planFlag == "" {
		slog.Debug("No signal or plan provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	compression, ok := format.ParseCompression(strings.ToLower(*compressionFlag))
	if !ok {
		return nil, false, &ExitError{Code: 2, Message: "invalid compression: must be 'none', 'zstd', 's2' or 'lz4'"}
	}

	config, err := app.NewConfig(app.Config{
		SignalPath:    signalPath,
		LowLossPath:   *lowLossFlag,
		PlanPath:      *planFlag,
		OutPath:       *outFlag,
		CataloguePath: *catalogueFlag,
		Name:          *nameFlag,
		List:          *listFlag,
		Variables:     vars,
		Workers:       *workersFlag,
		Compression:   compression,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "plan", config.PlanPath, "signal", config.SignalPath)
	return config, false, nil
}
