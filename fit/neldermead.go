package fit

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/arloliu/eelsfit/errs"
)

// NelderMead minimizes the cost with the gonum downhill simplex. Bounds are
// enforced by projecting every trial point onto the box before evaluating
// it, so the reported X is always feasible.
//
// Standard errors are not estimated; Result.Std is all zeros.
type NelderMead struct {
	cfg Config
}

var _ Fitter = (*NelderMead)(nil)

// NewNelderMead creates a simplex solver. Only the iteration, evaluation,
// timeout and cost tolerance settings apply.
func NewNelderMead(opts ...Option) (*NelderMead, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &NelderMead{cfg: cfg}, nil
}

// Config returns the solver settings.
func (nm *NelderMead) Config() Config { return nm.cfg }

// Fit minimizes p.
func (nm *NelderMead) Fit(ctx context.Context, p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	x0 := slices.Clone(p.Initial)
	p.project(x0)

	var instability error
	xt := make([]float64, p.N())
	r := make([]float64, p.M)
	objective := func(x []float64) float64 {
		copy(xt, x)
		p.project(xt)
		p.Residuals(xt, r)
		if !allFinite(r) {
			if instability == nil {
				instability = &errs.NumericalInstabilityError{Reason: "non-finite residual"}
			}

			return math.Inf(1)
		}

		return floats.Dot(r, r)
	}

	settings := &optimize.Settings{
		MajorIterations: nm.cfg.MaxIterations,
		FuncEvaluations: nm.cfg.maxEvaluations(p.N()),
		Converger: &optimize.FunctionConverge{
			Absolute:   nm.cfg.FTol,
			Relative:   nm.cfg.FTol,
			Iterations: 20 * p.N(),
		},
	}
	if nm.cfg.Timeout > 0 {
		settings.Runtime = nm.cfg.Timeout
	}

	problem := optimize.Problem{
		Func: objective,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if instability != nil {
				return optimize.Failure, instability
			}

			return optimize.NotTerminated, nil
		},
	}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if instability != nil {
		return Result{}, instability
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil && res == nil {
		return Result{}, err
	}

	x := slices.Clone(res.X)
	p.project(x)

	var converged bool
	switch res.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge:
		converged = true
	}

	return Result{
		X:           x,
		Std:         make([]float64, p.N()),
		Cost:        res.F,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: res.Stats.FuncEvaluations,
		Converged:   converged,
		Reason:      res.Status.String(),
	}, nil
}
