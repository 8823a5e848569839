package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/fit"
	"github.com/arloliu/eelsfit/internal/ctxlog"
	"github.com/arloliu/eelsfit/internal/pool"
	"github.com/arloliu/eelsfit/signal"
)

// planComponent is an active component in a fit plan.
type planComponent struct {
	comp      component.Component
	ci        int
	params    []*component.Parameter
	offset    int
	convolved bool
}

// fitPlan is the immutable snapshot of the model configuration used by one
// Multifit or Fit call.
type fitPlan struct {
	m       *Model
	target  *signal.Signal
	comps   []planComponent
	nParams int
	// free lists the slots of the full parameter vector that are fitted.
	free   []int
	lower  []float64
	upper  []float64
	slotPM []*ParameterMap

	energy  []float64
	maskIdx []int
	maskedE []float64
	lowLoss *signal.Signal
}

// begin marks the model busy and snapshots the configuration.
func (m *Model) begin(bounded bool) (*fitPlan, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.target == nil {
		return nil, nil, errs.ErrNoTarget
	}
	if !m.busy.CompareAndSwap(false, true) {
		return nil, nil, errs.ErrModelBusy
	}

	plan, err := m.planLocked(bounded, false)
	if err != nil {
		m.busy.Store(false)
		return nil, nil, err
	}
	if len(plan.comps) > 0 && len(plan.free) == 0 {
		m.busy.Store(false)
		return nil, nil, errs.ErrNoFreeParameters
	}

	return plan, func() { m.busy.Store(false) }, nil
}

func (m *Model) planLocked(bounded, fullAxis bool) (*fitPlan, error) {
	plan := &fitPlan{
		m:       m,
		target:  m.target,
		energy:  m.axis.Values(),
		lowLoss: m.cfg.LowLoss,
	}

	for ci, c := range m.components {
		if !c.Active() {
			continue
		}

		params := c.Parameters()
		pc := planComponent{comp: c, ci: ci, params: params, offset: plan.nParams}
		if cv, ok := c.(component.Convolvable); ok && cv.Convolved() && plan.lowLoss != nil {
			pc.convolved = true
		}

		for pi, p := range params {
			slot := plan.nParams + pi
			plan.slotPM = append(plan.slotPM, m.maps[ci][pi])
			if !p.Free() {
				continue
			}
			plan.free = append(plan.free, slot)
			if bounded {
				lo, hi := p.Bounds()
				plan.lower = append(plan.lower, lo)
				plan.upper = append(plan.upper, hi)
			}
		}
		plan.nParams += len(params)
		plan.comps = append(plan.comps, pc)
	}

	for i, in := range m.mask {
		if in || fullAxis {
			plan.maskIdx = append(plan.maskIdx, i)
			plan.maskedE = append(plan.maskedE, plan.energy[i])
		}
	}
	if len(plan.maskIdx) == 0 {
		return nil, errs.ErrEmptySignalRange
	}

	return plan, nil
}

// worker holds the per-goroutine state of a fit.
type worker struct {
	plan *fitPlan
	conv *convolver
}

func (p *fitPlan) newWorker() *worker {
	w := &worker{plan: p}
	for _, pc := range p.comps {
		if pc.convolved {
			w.conv = newConvolver(p.lowLoss, len(p.energy))
			break
		}
	}

	return w
}

// evaluate writes the model at the masked channels for the full parameter
// vector vals into dst. full and part are scratch of the axis and mask length.
func (w *worker) evaluate(index int, vals, dst, full, part []float64) {
	p := w.plan
	clear(dst)
	for _, pc := range p.comps {
		params := vals[pc.offset : pc.offset+len(pc.params)]
		if pc.convolved {
			w.conv.prepare(index)
			pc.comp.Function(p.energy, params, full)
			w.conv.apply(full)
			for k, i := range p.maskIdx {
				dst[k] += full[i]
			}

			continue
		}
		pc.comp.Function(p.maskedE, params, part)
		floats.Add(dst, part)
	}
}

// initial fills the full parameter vector of pixel index.
func (p *fitPlan) initial(index int, vals []float64) {
	for _, pc := range p.comps {
		p.m.initialValues(pc.ci, pc.params, index, vals[pc.offset:pc.offset+len(pc.params)])
	}
}

// fitPixel fits one pixel and writes the result into the store.
func (w *worker) fitPixel(ctx context.Context, fitter fit.Fitter, index int) PixelResult {
	p := w.plan
	res := PixelResult{Index: index, Coord: p.target.Coord(index)}

	spectrum := p.target.Spectrum(index)
	nm := len(p.maskIdx)
	obs, releaseObs := pool.GetFloat64Slice(nm)
	defer releaseObs()
	for k, i := range p.maskIdx {
		obs[k] = spectrum[i]
	}

	if len(p.comps) == 0 {
		res.Status = StatusConverged
		res.Cost = floats.Dot(obs, obs)

		return res
	}

	vals, releaseVals := pool.GetFloat64Slice(p.nParams)
	defer releaseVals()
	work, releaseWork := pool.GetFloat64Slice(p.nParams)
	defer releaseWork()
	full, releaseFull := pool.GetFloat64Slice(len(p.energy))
	defer releaseFull()
	part, releasePart := pool.GetFloat64Slice(nm)
	defer releasePart()

	p.initial(index, vals)
	x0 := make([]float64, len(p.free))
	for k, s := range p.free {
		x0[k] = vals[s]
	}

	problem := fit.Problem{
		M:       nm,
		Initial: x0,
		Residuals: func(x, dst []float64) {
			copy(work, vals)
			for k, s := range p.free {
				work[s] = x[k]
			}
			w.evaluate(index, work, dst, full, part)
			floats.Sub(dst, obs)
		},
	}
	if p.lower != nil {
		problem.Lower, problem.Upper = p.lower, p.upper
	}

	out, err := fitter.Fit(ctx, problem)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			res.Status = StatusSkipped
		} else {
			res.Status = StatusFailed
		}
		res.Err = err

		return res
	}

	res.Cost = out.Cost
	res.Iterations = out.Iterations
	res.Status = StatusConverged
	if !out.Converged {
		res.Status = StatusNotConverged
		res.Err = &errs.NonConvergenceWarning{Index: index, Iterations: out.Iterations, Cost: out.Cost}
	}

	std := make([]float64, p.nParams)
	for k, s := range p.free {
		vals[s] = out.X[k]
		std[s] = out.Std[k]
	}
	for s, pm := range p.slotPM {
		pm.Values[index] = vals[s]
		pm.Std[index] = std[s]
		pm.IsSet[index] = true
	}

	return res
}

// Multifit fits every navigation position in row-major order on a pool of
// workers. Each pixel starts from its stored values where set and from the
// current Parameter values otherwise; Parameter values themselves are not
// changed.
//
// Per-pixel failures are recorded in the report and never abort the batch.
// Fitted values live in the per-pixel store; the Parameter values are left
// as they were, except that a bounded fit clamps free values lying outside
// their bounds.
// With no active component every pixel converges trivially with a cost of
// Σ(masked target²). On cancellation Multifit stops dispatching, keeps the
// pixels already fitted and returns the partial report with ctx.Err().
//
// Returns:
//   - errs.ErrNoTarget: the model is detached
//   - errs.ErrModelBusy: another fit is running
//   - errs.ErrNoFreeParameters: active components exist but none has a free parameter
func (m *Model) Multifit(ctx context.Context, bounded bool) (*FitReport, error) {
	plan, release, err := m.begin(bounded)
	if err != nil {
		return nil, err
	}

	logger := m.logger(ctx)
	start := time.Now()
	n := m.navSize

	report := &FitReport{Pixels: make([]PixelResult, n), Bounded: bounded}
	for i := range report.Pixels {
		report.Pixels[i] = PixelResult{Index: i, Coord: plan.target.Coord(i), Status: StatusSkipped}
	}

	workers := min(m.cfg.Workers, n)
	logger.Debug("multifit started",
		"pixels", n, "workers", workers, "bounded", bounded,
		"components", len(plan.comps), "free", len(plan.free), "channels", len(plan.maskIdx))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := plan.newWorker()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				r := w.fitPixel(ctx, m.cfg.Fitter, idx)
				if r.Status == StatusFailed {
					logger.Debug("pixel failed", "index", idx, "coord", r.Coord, "error", r.Err)
				}
				report.Pixels[idx] = r
			}
		}()
	}

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	release()
	if bounded {
		m.clampValues(plan)
	}

	report.tally()
	report.Duration = time.Since(start)

	logger.Info("multifit finished",
		"pixels", n,
		"converged", report.Converged,
		"not_converged", report.NotConverged,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration)

	return report, ctx.Err()
}

// clampValues moves the values of the free parameters that took part in a
// fit back inside their bounds. It does nothing if another fit has started.
func (m *Model) clampValues(plan *fitPlan) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy.Load() {
		return
	}
	for _, pc := range plan.comps {
		for _, p := range pc.params {
			if !p.Free() {
				continue
			}
			if v := p.Value(); p.Clamp(v) != v {
				_ = p.Set(p.Clamp(v))
			}
		}
	}
}

// Fit fits the pixel at coord, updates its store slots and then sets the
// Parameter values to the fitted ones.
//
// A pixel-level failure is returned both in the result and as the error.
func (m *Model) Fit(ctx context.Context, coord []int, bounded bool) (PixelResult, error) {
	idx, err := m.index(coord)
	if err != nil {
		return PixelResult{}, err
	}

	plan, release, err := m.begin(bounded)
	if err != nil {
		return PixelResult{}, err
	}

	res := plan.newWorker().fitPixel(ctx, m.cfg.Fitter, idx)
	release()

	if res.Status == StatusFailed || res.Status == StatusSkipped {
		return res, res.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchLocked(idx); err != nil {
		return res, err
	}

	return res, nil
}

// ModelSpectrum evaluates the active components at coord over the full axis
// using the stored values where set and the current values otherwise.
func (m *Model) ModelSpectrum(coord []int) ([]float64, error) {
	idx, err := m.index(coord)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.readable(); err != nil {
		return nil, err
	}

	plan, err := m.planLocked(false, true)
	if err != nil {
		return nil, err
	}

	vals := make([]float64, plan.nParams)
	plan.initial(idx, vals)

	out := make([]float64, len(plan.energy))
	full := make([]float64, len(plan.energy))
	part := make([]float64, len(plan.energy))
	plan.newWorker().evaluate(idx, vals, out, full, part)

	return out, nil
}

// Residual returns target − model at coord over the full axis.
func (m *Model) Residual(coord []int) ([]float64, error) {
	target := m.Target()
	if target == nil {
		return nil, errs.ErrNoTarget
	}

	spec, err := m.ModelSpectrum(coord)
	if err != nil {
		return nil, err
	}
	idx, err := m.index(coord)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(spec))
	floats.SubTo(out, target.Spectrum(idx), spec)

	return out, nil
}

func (m *Model) logger(ctx context.Context) *slog.Logger {
	if l, ok := ctxlog.Lookup(ctx); ok {
		return l
	}

	return m.cfg.Logger
}

// String describes the model, for logs.
func (m *Model) String() string {
	return fmt.Sprintf("Model(%d components, nav %v, %s)", len(m.components), m.nav, m.axis.Describe())
}
