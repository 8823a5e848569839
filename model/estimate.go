package model

import (
	"context"
	"fmt"
	"math"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
)

// EstimateComponent derives closed-form initial values for a component from
// the channels in [lo, hi] of every pixel and stores them, clamped to the
// parameter bounds. Frozen parameters keep their starting values.
//
// Pixels whose window cannot be estimated are left unchanged and counted in
// failed.
func (m *Model) EstimateComponent(ctx context.Context, name string, lo, hi float64) (failed int, err error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return 0, fmt.Errorf("%w: [%g, %g]", errs.ErrInvalidRange, lo, hi)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return 0, err
	}
	if m.target == nil {
		return 0, errs.ErrNoTarget
	}

	ci, ok := m.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownComponent, name)
	}
	c := m.components[ci]
	est, ok := c.(component.Estimator)
	if !ok {
		return 0, fmt.Errorf("%w: %s %q", errs.ErrNotEstimable, c.Kind(), name)
	}

	tol := 1e-9 * math.Abs(m.axis.Scale)
	var channels []int
	var energy []float64
	for i := range m.axis.Size {
		e := m.axis.Value(i)
		if e >= lo-tol && e <= hi+tol {
			channels = append(channels, i)
			energy = append(energy, e)
		}
	}
	if len(channels) < 2 {
		return 0, fmt.Errorf("%w: [%g, %g] selects %d channels", errs.ErrEmptySignalRange, lo, hi, len(channels))
	}

	params := c.Parameters()
	current := make([]float64, len(params))
	counts := make([]float64, len(channels))
	logger := m.logger(ctx)

	for idx := range m.navSize {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		spectrum := m.target.Spectrum(idx)
		for k, ch := range channels {
			counts[k] = spectrum[ch]
		}
		m.initialValues(ci, params, idx, current)

		values, err := est.Estimate(energy, counts, current)
		if err != nil || len(values) != len(params) {
			logger.Debug("estimate failed", "component", name, "index", idx, "error", err)
			failed++

			continue
		}

		usable := true
		for pi, p := range params {
			if p.Free() {
				values[pi] = p.Clamp(values[pi])
			} else {
				values[pi] = current[pi]
			}
			if math.IsNaN(values[pi]) || math.IsInf(values[pi], 0) {
				usable = false
			}
		}
		if !usable {
			failed++
			continue
		}

		for pi, v := range values {
			pm := m.maps[ci][pi]
			pm.Values[idx], pm.Std[idx], pm.IsSet[idx] = v, 0, true
		}
	}

	return failed, nil
}
