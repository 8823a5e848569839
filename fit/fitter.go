// Package fit provides box-constrained nonlinear least-squares solvers.
//
// A Problem describes the residual vector r(x) of length M for a decision
// vector x, an initial guess and optional per-parameter bounds. A Fitter
// minimizes Σ r(x)² over the box and reports whether a tolerance was met.
//
// Two solvers are provided:
//   - LevenbergMarquardt: bounded Levenberg-Marquardt with projected steps
//     and an active set; the default used by the model package.
//   - NelderMead: derivative-free simplex from gonum/optimize on the
//     projected parameters, useful when residuals are not smooth.
//
// Both are deterministic: the same Problem always yields the same Result.
package fit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/internal/options"
)

// ResidualFunc writes the residuals at x into dst. len(dst) == Problem.M.
type ResidualFunc func(x, dst []float64)

// Problem is a box-constrained least-squares problem.
type Problem struct {
	// Residuals evaluates r(x).
	Residuals ResidualFunc
	// M is the number of residuals.
	M int
	// Initial is the starting point. It is projected onto the bounds first.
	Initial []float64
	// Lower and Upper are the bounds. Both nil means unbounded.
	Lower []float64
	Upper []float64
}

// N returns the number of decision variables.
func (p Problem) N() int { return len(p.Initial) }

// Validate checks dimensions and bounds.
func (p Problem) Validate() error {
	if p.Residuals == nil {
		return fmt.Errorf("%w: nil residual function", errs.ErrDimensionMismatch)
	}
	if p.M <= 0 || len(p.Initial) == 0 {
		return fmt.Errorf("%w: %d residuals for %d parameters", errs.ErrDimensionMismatch, p.M, len(p.Initial))
	}
	if p.Lower == nil && p.Upper == nil {
		return nil
	}
	if len(p.Lower) != len(p.Initial) || len(p.Upper) != len(p.Initial) {
		return fmt.Errorf("%w: %d parameters, bounds of length %d and %d",
			errs.ErrDimensionMismatch, len(p.Initial), len(p.Lower), len(p.Upper))
	}
	for i := range p.Lower {
		if math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) || p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("%w: parameter %d [%g, %g]", errs.ErrInvalidBounds, i, p.Lower[i], p.Upper[i])
		}
	}

	return nil
}

func (p Problem) bounded() bool { return p.Lower != nil }

// project clamps x onto the box in place.
func (p Problem) project(x []float64) {
	if !p.bounded() {
		return
	}
	for i := range x {
		x[i] = math.Max(p.Lower[i], math.Min(p.Upper[i], x[i]))
	}
}

// Result is the outcome of a fit.
type Result struct {
	// X is the best point found. It always lies inside the bounds.
	X []float64
	// Std holds one-sigma standard errors of X, or zeros when the covariance
	// could not be estimated.
	Std []float64
	// Cost is the residual sum of squares at X.
	Cost        float64
	Iterations  int
	Evaluations int
	// Converged reports whether a tolerance test was met within the budgets.
	Converged bool
	// Reason names the test that stopped the solver.
	Reason string
}

// Fitter minimizes a Problem.
//
// Non-convergence is not an error: the best iterate is returned with
// Converged false. NaN or infinite residuals and singular Jacobians are
// reported as *errs.NumericalInstabilityError.
type Fitter interface {
	Fit(ctx context.Context, p Problem) (Result, error)
}

// Config holds the solver budgets and tolerances.
type Config struct {
	// MaxIterations bounds the number of outer iterations.
	MaxIterations int
	// MaxEvaluations bounds the number of residual evaluations. Zero means
	// 100·(N+1).
	MaxEvaluations int
	// Timeout bounds the wall-clock time of one fit. Zero means no limit.
	Timeout time.Duration
	// FTol is the relative cost reduction below which the fit has converged.
	FTol float64
	// XTol is the relative step size, in the norm weighted by the Jacobian
	// column norms, below which the fit has converged.
	XTol float64
	// GTol bounds the cosine between the residual vector and each active
	// Jacobian column below which the fit has converged.
	GTol float64
	// InitialDamping is the starting Marquardt damping factor.
	InitialDamping float64
}

// DefaultConfig returns the default solver settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  200,
		FTol:           1e-10,
		XTol:           1e-10,
		GTol:           1e-12,
		InitialDamping: 1e-3,
	}
}

func (c Config) maxEvaluations(n int) int {
	if c.MaxEvaluations > 0 {
		return c.MaxEvaluations
	}

	return 100 * (n + 1)
}

// Option configures a solver.
type Option = options.Option[*Config]

// WithMaxIterations sets the iteration budget.
func WithMaxIterations(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max iterations must be positive, got %d", n)
		}
		c.MaxIterations = n

		return nil
	})
}

// WithMaxEvaluations sets the residual evaluation budget.
func WithMaxEvaluations(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max evaluations must be positive, got %d", n)
		}
		c.MaxEvaluations = n

		return nil
	})
}

// WithTimeout sets a wall-clock budget per fit.
func WithTimeout(d time.Duration) Option {
	return options.NoError(func(c *Config) {
		c.Timeout = d
	})
}

// WithTolerances sets the cost, step and gradient tolerances.
func WithTolerances(ftol, xtol, gtol float64) Option {
	return options.New(func(c *Config) error {
		if ftol < 0 || xtol < 0 || gtol < 0 {
			return fmt.Errorf("tolerances must be non-negative, got %g %g %g", ftol, xtol, gtol)
		}
		c.FTol, c.XTol, c.GTol = ftol, xtol, gtol

		return nil
	})
}

// WithInitialDamping sets the starting Marquardt damping factor.
func WithInitialDamping(lambda float64) Option {
	return options.New(func(c *Config) error {
		if !(lambda > 0) {
			return fmt.Errorf("initial damping must be positive, got %g", lambda)
		}
		c.InitialDamping = lambda

		return nil
	})
}

func newConfig(opts []Option) (Config, error) {
	cfg := DefaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}
