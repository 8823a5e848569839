// Package plan reads fit plans: HCL files that declare the components of an
// EELS model and the stages of a staged fit.
//
//	microscope {
//	  beam_energy = 200
//	  collection  = 50
//	}
//
//	fitter {
//	  method  = "lm"
//	  workers = 8
//	}
//
//	component "PowerLaw" "bg" {
//	  parameter "A" {
//	    min = 0
//	  }
//	}
//
//	edge "Cu" "L3" {
//	  onset = 931
//	}
//
//	stage "background" {
//	  signal_range = [850, 920]
//	  active       = ["bg"]
//	  estimate "bg" {
//	    range = [850, 920]
//	  }
//	}
//
//	stage "edges" {
//	  reset_range = true
//	  active      = ["bg", "Cu_L3"]
//	  freeze      = ["bg"]
//	}
//
// Expressions may use caller variables as var.<name> and the functions min,
// max, abs, upper and lower.
package plan

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/arloliu/eelsfit/internal/ctxlog"
	"github.com/arloliu/eelsfit/internal/options"
)

// Plan is a decoded fit plan.
type Plan struct {
	Microscope *MicroscopeBlock  `hcl:"microscope,block"`
	Fitter     *FitterBlock      `hcl:"fitter,block"`
	Components []*ComponentBlock `hcl:"component,block"`
	Edges      []*EdgeBlock      `hcl:"edge,block"`
	Stages     []*StageBlock     `hcl:"stage,block"`
}

// MicroscopeBlock holds the acquisition settings passed to the edge provider.
type MicroscopeBlock struct {
	BeamEnergy  float64 `hcl:"beam_energy"`
	Convergence float64 `hcl:"convergence,optional"`
	Collection  float64 `hcl:"collection"`
}

// FitterBlock selects and tunes the per-pixel solver.
type FitterBlock struct {
	// Method is "lm" (default) or "nelder-mead".
	Method         string   `hcl:"method,optional"`
	MaxIterations  *int     `hcl:"max_iterations,optional"`
	MaxEvaluations *int     `hcl:"max_evaluations,optional"`
	Timeout        string   `hcl:"timeout,optional"`
	FTol           *float64 `hcl:"ftol,optional"`
	XTol           *float64 `hcl:"xtol,optional"`
	GTol           *float64 `hcl:"gtol,optional"`
	Workers        *int     `hcl:"workers,optional"`
}

// ComponentBlock declares a component of a registered kind.
type ComponentBlock struct {
	Kind       string            `hcl:"kind,label"`
	Name       string            `hcl:"name,label"`
	Config     []float64         `hcl:"config,optional"`
	Active     *bool             `hcl:"active,optional"`
	Convolved  *bool             `hcl:"convolved,optional"`
	Parameters []*ParameterBlock `hcl:"parameter,block"`
}

// EdgeBlock declares an ionization edge, named Element_Shell in the model.
type EdgeBlock struct {
	Element    string            `hcl:"element,label"`
	Shell      string            `hcl:"shell,label"`
	Onset      *float64          `hcl:"onset,optional"`
	Active     *bool             `hcl:"active,optional"`
	Convolved  *bool             `hcl:"convolved,optional"`
	Parameters []*ParameterBlock `hcl:"parameter,block"`
}

// ParameterBlock overrides the starting state of one parameter. Bounds are
// applied before the value.
type ParameterBlock struct {
	Name  string   `hcl:"name,label"`
	Value *float64 `hcl:"value,optional"`
	Min   *float64 `hcl:"min,optional"`
	Max   *float64 `hcl:"max,optional"`
	Free  *bool    `hcl:"free,optional"`
}

// StageBlock is one step of a staged fit. Its fields are applied in the
// order they are listed here, then the model is fitted unless fit = false.
type StageBlock struct {
	Name string `hcl:"name,label"`
	// ResetRange restores the full energy axis.
	ResetRange bool `hcl:"reset_range,optional"`
	// SignalRange is [lo, hi] in eV.
	SignalRange []float64 `hcl:"signal_range,optional"`
	// Active, when set, activates exactly these components.
	Active []string `hcl:"active,optional"`
	// Freeze and Free name whole components ("bg") or single parameters
	// ("bg.r").
	Freeze    []string         `hcl:"freeze,optional"`
	Free      []string         `hcl:"free,optional"`
	Estimates []*EstimateBlock `hcl:"estimate,block"`
	Fit       *bool            `hcl:"fit,optional"`
	Bounded   *bool            `hcl:"bounded,optional"`
}

// EstimateBlock fills a component's parameter maps from closed-form
// estimates over an energy window.
type EstimateBlock struct {
	Component string    `hcl:"component,label"`
	Range     []float64 `hcl:"range"`
}

type parseConfig struct {
	variables map[string]cty.Value
}

// Option configures Parse and ParseFile.
type Option = options.Option[*parseConfig]

// WithVariables exposes values to plan expressions as var.<name>.
func WithVariables(vars map[string]cty.Value) Option {
	return options.NoError(func(c *parseConfig) {
		if c.variables == nil {
			c.variables = make(map[string]cty.Value, len(vars))
		}
		for k, v := range vars {
			c.variables[k] = v
		}
	})
}

func evalContext(cfg parseConfig) *hcl.EvalContext {
	vars := cty.EmptyObjectVal
	if len(cfg.variables) > 0 {
		vars = cty.ObjectVal(cfg.variables)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": vars},
		Functions: map[string]function.Function{
			"min":   stdlib.MinFunc,
			"max":   stdlib.MaxFunc,
			"abs":   stdlib.AbsoluteFunc,
			"upper": stdlib.UpperFunc,
			"lower": stdlib.LowerFunc,
		},
	}
}

// Parse decodes a plan from HCL source. filename is used in diagnostics.
func Parse(src []byte, filename string, opts ...Option) (*Plan, error) {
	var cfg parseConfig
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse plan %s: %w", filename, diags)
	}

	return decode(file, filename, cfg)
}

// ParseFile reads and decodes a plan file.
func ParseFile(ctx context.Context, path string, opts ...Option) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Decoding plan file.", "path", path)

	var cfg parseConfig
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, diags)
	}

	p, err := decode(file, path, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("Decoded plan file.", "path", path,
		"components", len(p.Components), "edges", len(p.Edges), "stages", len(p.Stages))

	return p, nil
}

func decode(file *hcl.File, filename string, cfg parseConfig) (*Plan, error) {
	var p Plan
	if diags := gohcl.DecodeBody(file.Body, evalContext(cfg), &p); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode plan %s: %w", filename, diags)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", filename, err)
	}

	return &p, nil
}
