package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/eelsfit/errs"
)

// Status is the outcome of one pixel fit.
type Status uint8

const (
	// StatusSkipped marks a pixel that was not fitted, because the fit was
	// cancelled before reaching it.
	StatusSkipped Status = iota
	// StatusConverged marks a pixel whose fit met a tolerance.
	StatusConverged
	// StatusNotConverged marks a pixel whose fit ran out of budget. The best
	// iterate was stored.
	StatusNotConverged
	// StatusFailed marks a pixel whose fit returned an error. Its stored
	// values are unchanged.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusConverged:
		return "converged"
	case StatusNotConverged:
		return "not-converged"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// PixelResult is the outcome of the fit at one navigation position.
type PixelResult struct {
	Index      int
	Coord      []int
	Status     Status
	Cost       float64
	Iterations int
	// Err is the fit error for StatusFailed, a *errs.NonConvergenceWarning
	// for StatusNotConverged and the context error for cancelled pixels.
	Err error
}

// FitReport enumerates the per-pixel outcome of a Multifit call.
type FitReport struct {
	Pixels       []PixelResult
	Bounded      bool
	Converged    int
	NotConverged int
	Failed       int
	Skipped      int
	Duration     time.Duration
}

func (r *FitReport) tally() {
	r.Converged, r.NotConverged, r.Failed, r.Skipped = 0, 0, 0, 0
	for _, p := range r.Pixels {
		switch p.Status {
		case StatusConverged:
			r.Converged++
		case StatusNotConverged:
			r.NotConverged++
		case StatusFailed:
			r.Failed++
		default:
			r.Skipped++
		}
	}
}

// AllConverged reports whether every pixel converged.
func (r *FitReport) AllConverged() bool {
	return r.Converged == len(r.Pixels)
}

// Warnings returns the non-convergence warnings in pixel order.
func (r *FitReport) Warnings() []*errs.NonConvergenceWarning {
	var out []*errs.NonConvergenceWarning
	for _, p := range r.Pixels {
		var w *errs.NonConvergenceWarning
		if p.Status == StatusNotConverged && errors.As(p.Err, &w) {
			out = append(out, w)
		}
	}

	return out
}

// Unconverged returns every pixel that was fitted without converging,
// failed pixels included.
func (r *FitReport) Unconverged() []PixelResult {
	var out []PixelResult
	for _, p := range r.Pixels {
		if p.Status == StatusNotConverged || p.Status == StatusFailed {
			out = append(out, p)
		}
	}

	return out
}

// TotalCost returns the sum of the per-pixel costs of fitted pixels.
func (r *FitReport) TotalCost() float64 {
	total := 0.0
	for _, p := range r.Pixels {
		if p.Status == StatusConverged || p.Status == StatusNotConverged {
			total += p.Cost
		}
	}

	return total
}

func (r *FitReport) String() string {
	return fmt.Sprintf("%d pixels: %d converged, %d not converged, %d failed, %d skipped in %s",
		len(r.Pixels), r.Converged, r.NotConverged, r.Failed, r.Skipped, r.Duration)
}
