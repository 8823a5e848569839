package app

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/arloliu/eelsfit/format"
)

// Config holds the validated settings of one eelsfit invocation.
type Config struct {
	// SignalPath is the signal archive to fit.
	SignalPath string
	// LowLossPath is an optional low-loss signal archive.
	LowLossPath string
	// PlanPath is the HCL fit plan.
	PlanPath string
	// OutPath receives the fitted model archive. Empty skips writing.
	OutPath string
	// CataloguePath is an optional SQLite catalogue the model is recorded in.
	CataloguePath string
	// Name is the catalogue record name.
	Name string
	// List prints the catalogue instead of fitting.
	List bool

	Variables   map[string]cty.Value
	Workers     int
	Compression format.CompressionType
	LogFormat   string
	LogLevel    string
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.List {
		if cfg.CataloguePath == "" {
			return nil, fmt.Errorf("listing requires a catalogue path")
		}

		return &cfg, nil
	}

	if cfg.SignalPath == "" {
		return nil, fmt.Errorf("a signal archive is required")
	}
	if cfg.PlanPath == "" {
		return nil, fmt.Errorf("a plan file is required")
	}
	if cfg.OutPath == "" && cfg.CataloguePath == "" {
		return nil, fmt.Errorf("nothing to write: set an output path or a catalogue")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("worker count must not be negative, got %d", cfg.Workers)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.SignalPath
	}
	if cfg.Compression == 0 {
		cfg.Compression = format.CompressionZstd
	}

	return &cfg, nil
}
