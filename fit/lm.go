package fit

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/eelsfit/errs"
)

const (
	// maxDamping stops the damping loop when no step reduces the cost.
	maxDamping = 1e20
	minDamping = 1e-15
)

var sqrtEps = math.Sqrt(2.220446049250313e-16)

// LevenbergMarquardt is a bounded Levenberg-Marquardt solver.
//
// Each iteration builds a forward-difference Jacobian (backward at an upper
// bound), excludes parameters sitting on a bound whose gradient points out
// of the box, solves the Marquardt-damped normal equations with a Cholesky
// factorization and projects the step onto the bounds.
type LevenbergMarquardt struct {
	cfg Config
}

var _ Fitter = (*LevenbergMarquardt)(nil)

// NewLevenbergMarquardt creates a solver with DefaultConfig adjusted by opts.
func NewLevenbergMarquardt(opts ...Option) (*LevenbergMarquardt, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &LevenbergMarquardt{cfg: cfg}, nil
}

// Config returns the solver settings.
func (lm *LevenbergMarquardt) Config() Config { return lm.cfg }

// Fit minimizes p.
func (lm *LevenbergMarquardt) Fit(ctx context.Context, p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	run := newLMRun(lm.cfg, p)

	return run.solve(ctx)
}

type lmRun struct {
	cfg      Config
	p        Problem
	n, m     int
	maxEvals int
	deadline time.Time

	x    []float64
	r    []float64
	cost float64

	jac    *mat.Dense
	grad   []float64
	pinned []bool

	iter  int
	evals int

	// scratch
	xt []float64
	rt []float64
}

func newLMRun(cfg Config, p Problem) *lmRun {
	n, m := p.N(), p.M
	run := &lmRun{
		cfg:      cfg,
		p:        p,
		n:        n,
		m:        m,
		maxEvals: cfg.maxEvaluations(n),
		x:        slices.Clone(p.Initial),
		r:        make([]float64, m),
		jac:      mat.NewDense(m, n, nil),
		grad:     make([]float64, n),
		pinned:   make([]bool, n),
		xt:       make([]float64, n),
		rt:       make([]float64, m),
	}
	if cfg.Timeout > 0 {
		run.deadline = time.Now().Add(cfg.Timeout)
	}
	p.project(run.x)
	if p.bounded() {
		for j := range run.pinned {
			run.pinned[j] = p.Lower[j] == p.Upper[j]
		}
	}

	return run
}

// trial evaluates the residuals at x and reports whether they are finite.
func (s *lmRun) trial(x, dst []float64) bool {
	s.p.Residuals(x, dst)
	s.evals++

	return allFinite(dst)
}

// evaluate is trial for points the solver cannot step away from: the start
// and the Jacobian columns.
func (s *lmRun) evaluate(x, dst []float64) error {
	if !s.trial(x, dst) {
		return &errs.NumericalInstabilityError{Iteration: s.iter, Reason: "non-finite residual"}
	}

	return nil
}

// finish builds the result at s.x. A converged point must have a finite,
// full-rank Jacobian.
func (s *lmRun) finish(converged bool, reason string) (Result, error) {
	jacErr := s.jacobian(false)
	std := make([]float64, s.n)
	if jacErr == nil {
		std = s.standardErrors()
	}

	if converged {
		if jacErr != nil {
			return Result{}, jacErr
		}
		if j, ok := s.degenerate(); ok {
			return Result{}, &errs.NumericalInstabilityError{
				Iteration: s.iter,
				Reason:    fmt.Sprintf("singular Jacobian: parameter %d has no effect at the solution", j),
			}
		}
	}

	return Result{
		X:           slices.Clone(s.x),
		Std:         std,
		Cost:        s.cost,
		Iterations:  s.iter,
		Evaluations: s.evals,
		Converged:   converged,
		Reason:      reason,
	}, nil
}

func (s *lmRun) solve(ctx context.Context) (Result, error) {
	if err := s.evaluate(s.x, s.r); err != nil {
		return Result{}, err
	}
	s.cost = floats.Dot(s.r, s.r)
	lambda := s.cfg.InitialDamping

	for s.iter = 0; s.iter < s.cfg.MaxIterations; s.iter++ {
		if err := ctx.Err(); err != nil {
			res, _ := s.finish(false, "cancelled")
			return res, err
		}
		if !s.deadline.IsZero() && time.Now().After(s.deadline) {
			return s.finish(false, "time budget exhausted")
		}
		if s.evals+s.n > s.maxEvals {
			return s.finish(false, "evaluation budget exhausted")
		}

		if err := s.jacobian(true); err != nil {
			return Result{}, err
		}
		active := s.activeSet()
		if len(active) == 0 {
			return s.finish(true, "all parameters at bounds")
		}
		if s.gradientConverged(active) {
			return s.finish(true, "gradient tolerance")
		}

		jtj := mat.NewSymDense(s.n, nil)
		jtj.SymOuterK(1, s.jac.T())

		for {
			if s.evals >= s.maxEvals {
				return s.finish(false, "evaluation budget exhausted")
			}

			delta, ok := s.dampedStep(jtj, active, lambda)
			if !ok {
				lambda *= 10
				if lambda > maxDamping {
					return s.stalled(jtj, active)
				}

				continue
			}

			copy(s.xt, s.x)
			for a, j := range active {
				s.xt[j] += delta[a]
			}
			s.p.project(s.xt)

			small := s.smallStep(jtj)

			// A non-finite trial point is a rejected step.
			costNew := math.Inf(1)
			if s.trial(s.xt, s.rt) {
				costNew = floats.Dot(s.rt, s.rt)
			}

			if costNew < s.cost {
				reduced := s.cost - costNew
				copy(s.x, s.xt)
				copy(s.r, s.rt)
				prev := s.cost
				s.cost = costNew
				lambda = math.Max(lambda/10, minDamping)

				if reduced <= s.cfg.FTol*prev {
					s.iter++
					return s.finish(true, "cost tolerance")
				}
				if small {
					s.iter++
					return s.finish(true, "step tolerance")
				}

				break
			}

			if small && !math.IsInf(costNew, 1) {
				s.iter++
				return s.finish(true, "step tolerance")
			}
			lambda *= 10
			if lambda > maxDamping {
				return s.stalled(jtj, active)
			}
		}
	}

	return s.finish(false, "iteration budget exhausted")
}

// stalled ends a fit whose damping loop found no descent step. The point is
// a minimum when the undamped step predicts a negligible cost reduction.
func (s *lmRun) stalled(jtj *mat.SymDense, active []int) (Result, error) {
	if delta, ok := s.dampedStep(jtj, active, 0); ok {
		if s.predictedReduction(jtj, active, delta) <= s.cfg.FTol*s.cost {
			return s.finish(true, "cost tolerance")
		}
	}

	return s.finish(false, "damping overflow")
}

// jacobian fills s.jac and s.grad at s.x. With check set, a column that is
// identically zero for an unpinned parameter is a singular Jacobian.
func (s *lmRun) jacobian(check bool) error {
	copy(s.xt, s.x)
	col := make([]float64, s.m)

	for j := 0; j < s.n; j++ {
		if s.pinned[j] {
			for i := 0; i < s.m; i++ {
				s.jac.Set(i, j, 0)
			}
			s.grad[j] = 0

			continue
		}

		h := sqrtEps * math.Max(math.Abs(s.x[j]), 1)
		if s.p.bounded() && s.x[j]+h > s.p.Upper[j] {
			h = -h
		}
		s.xt[j] = s.x[j] + h
		if err := s.evaluate(s.xt, s.rt); err != nil {
			return err
		}
		s.xt[j] = s.x[j]

		nonzero := false
		for i := range col {
			col[i] = (s.rt[i] - s.r[i]) / h
			if col[i] != 0 {
				nonzero = true
			}
		}
		if check && !nonzero {
			return &errs.NumericalInstabilityError{
				Iteration: s.iter,
				Reason:    fmt.Sprintf("singular Jacobian: parameter %d has no effect on the residuals", j),
			}
		}
		s.jac.SetCol(j, col)
		s.grad[j] = floats.Dot(col, s.r)
	}

	return nil
}

// activeSet returns the parameters free to move this iteration.
func (s *lmRun) activeSet() []int {
	active := make([]int, 0, s.n)
	for j := 0; j < s.n; j++ {
		if s.pinned[j] {
			continue
		}
		if s.p.bounded() {
			if s.x[j] <= s.p.Lower[j] && s.grad[j] > 0 {
				continue
			}
			if s.x[j] >= s.p.Upper[j] && s.grad[j] < 0 {
				continue
			}
		}
		active = append(active, j)
	}

	return active
}

// gradientConverged is the scale-free gradient test: for every active
// parameter the cosine between its Jacobian column and the residual vector
// is at most GTol.
func (s *lmRun) gradientConverged(active []int) bool {
	if s.cost == 0 {
		return true
	}
	rnorm := math.Sqrt(s.cost)
	for _, j := range active {
		cnorm := floats.Norm(mat.Col(nil, j, s.jac), 2)
		if math.Abs(s.grad[j]) > s.cfg.GTol*cnorm*rnorm {
			return false
		}
	}

	return true
}

// smallStep compares the step from s.x to s.xt with s.x, both measured in
// the norm weighted by the Jacobian column norms, against XTol.
func (s *lmRun) smallStep(jtj *mat.SymDense) bool {
	step, size := 0.0, 0.0
	for j := 0; j < s.n; j++ {
		d := jtj.At(j, j)
		dx := s.xt[j] - s.x[j]
		step += d * dx * dx
		size += d * s.x[j] * s.x[j]
	}

	return math.Sqrt(step) <= s.cfg.XTol*math.Sqrt(size)
}

// predictedReduction is the cost decrease the linearized residuals predict
// for delta on the active set.
func (s *lmRun) predictedReduction(jtj *mat.SymDense, active []int, delta []float64) float64 {
	lin, quad := 0.0, 0.0
	for a, j := range active {
		lin += s.grad[j] * delta[a]
		for b, k := range active {
			quad += delta[a] * jtj.At(j, k) * delta[b]
		}
	}

	return -(2*lin + quad)
}

// degenerate returns an unpinned parameter whose Jacobian column, weighted
// by max(|x|, 1), is negligible next to the largest weighted column.
func (s *lmRun) degenerate() (int, bool) {
	weights := make([]float64, s.n)
	largest := 0.0
	for j := 0; j < s.n; j++ {
		if s.pinned[j] {
			continue
		}
		weights[j] = floats.Norm(mat.Col(nil, j, s.jac), 2) * math.Max(math.Abs(s.x[j]), 1)
		largest = math.Max(largest, weights[j])
	}
	for j := 0; j < s.n; j++ {
		if !s.pinned[j] && weights[j] <= sqrtEps*largest {
			return j, true
		}
	}

	return -1, false
}

// dampedStep solves (JᵀJ + λ·diag(JᵀJ))·δ = −Jᵀr restricted to active.
// The system is Jacobi scaled to unit diagonal before the Cholesky
// factorization, so parameters of very different magnitude share one step.
func (s *lmRun) dampedStep(jtj *mat.SymDense, active []int, lambda float64) ([]float64, bool) {
	k := len(active)
	scale := make([]float64, k)
	for a, j := range active {
		d := jtj.At(j, j)
		scale[a] = math.Sqrt(d + lambda*math.Max(d, minDamping))
		if !(scale[a] > 0) || math.IsInf(scale[a], 0) {
			return nil, false
		}
	}

	a := mat.NewSymDense(k, nil)
	rhs := mat.NewVecDense(k, nil)
	for ai, j := range active {
		a.SetSym(ai, ai, 1)
		for bi := ai + 1; bi < k; bi++ {
			a.SetSym(ai, bi, jtj.At(j, active[bi])/(scale[ai]*scale[bi]))
		}
		rhs.SetVec(ai, -s.grad[j]/scale[ai])
	}

	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, false
	}

	z := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(z, rhs); err != nil {
		return nil, false
	}

	delta := z.RawVector().Data
	for ai := range delta {
		delta[ai] /= scale[ai]
	}
	if !allFinite(delta) {
		return nil, false
	}

	return delta, true
}

// standardErrors returns sqrt(diag((JᵀJ)⁻¹)·RSS/(m−n)) from the Jacobian at
// s.x, or zeros when the covariance is not available. The inverse is taken of
// the Jacobi-scaled JᵀJ.
func (s *lmRun) standardErrors() []float64 {
	std := make([]float64, s.n)
	dof := s.m - s.n
	if dof <= 0 {
		return std
	}

	jtj := mat.NewSymDense(s.n, nil)
	jtj.SymOuterK(1, s.jac.T())

	cols := make([]int, 0, s.n)
	for j := 0; j < s.n; j++ {
		if jtj.At(j, j) > 0 {
			cols = append(cols, j)
		}
	}
	if len(cols) == 0 {
		return std
	}

	scale := make([]float64, len(cols))
	for a, j := range cols {
		scale[a] = math.Sqrt(jtj.At(j, j))
	}
	sub := mat.NewSymDense(len(cols), nil)
	for a, i := range cols {
		for b := a; b < len(cols); b++ {
			sub.SetSym(a, b, jtj.At(i, cols[b])/(scale[a]*scale[b]))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sub) {
		return std
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return std
	}

	s2 := s.cost / float64(dof)
	for a, j := range cols {
		std[j] = math.Sqrt(math.Max(cov.At(a, a)*s2, 0)) / scale[a]
	}

	return std
}
