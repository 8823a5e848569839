// Package errs defines the error values shared by the eelsfit packages.
//
// Sentinel errors are compared with errors.Is. The typed errors
// (AxisMismatchError, OutOfBoundsError, NumericalInstabilityError and
// NonConvergenceWarning) carry context and unwrap to their sentinel, so
// callers can use either errors.Is or errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Configuration and construction errors. These are fatal: the operation that
// returned them did not change any state.
var (
	ErrAxisMismatch       = errors.New("axis mismatch")
	ErrOutOfBounds        = errors.New("value out of bounds")
	ErrInvalidBounds      = errors.New("invalid bounds: lower bound greater than upper bound")
	ErrInvalidShape       = errors.New("invalid signal shape")
	ErrInvalidCoordinate  = errors.New("invalid navigation coordinate")
	ErrEmptySignalRange   = errors.New("signal range selects no channels")
	ErrInvalidRange       = errors.New("invalid energy range")
	ErrNoFreeParameters   = errors.New("active components have no free parameters")
	ErrDuplicateComponent = errors.New("duplicate component name")
	ErrUnknownComponent   = errors.New("unknown component")
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrUnknownKind        = errors.New("unknown component kind")
	ErrInvalidConfig      = errors.New("invalid component configuration")
	ErrNoTarget           = errors.New("model has no target signal")
	ErrModelBusy          = errors.New("model is fitting")
	ErrNotEstimable       = errors.New("component does not support parameter estimation")
)

// Fitting errors.
var (
	ErrNumericalInstability = errors.New("numerical instability")
	ErrNonConvergence       = errors.New("iteration budget exhausted before convergence")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
)

// Archive errors.
var (
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrInvalidHeaderFlags = errors.New("invalid header flags")
	ErrInvalidMagic       = errors.New("invalid archive magic number")
	ErrInvalidVersion     = errors.New("unsupported archive version")
	ErrChecksumMismatch   = errors.New("archive checksum mismatch")
	ErrTruncatedPayload   = errors.New("truncated archive payload")
	ErrTrailingData       = errors.New("archive payload has unread content")
	ErrHashCollision      = errors.New("component name hash collision")
	ErrInvalidName        = errors.New("invalid name")
	ErrWrongArchiveKind   = errors.New("archive holds a different kind of object")
)

// Catalogue errors.
var (
	ErrRecordNotFound = errors.New("catalogue record not found")
)

// AxisMismatchError reports a component or auxiliary signal whose energy axis
// does not match the target signal.
type AxisMismatchError struct {
	Component string
	Reason    string
}

func (e *AxisMismatchError) Error() string {
	return fmt.Sprintf("axis mismatch for %q: %s", e.Component, e.Reason)
}

func (e *AxisMismatchError) Unwrap() error { return ErrAxisMismatch }

// OutOfBoundsError reports a manual parameter assignment outside the declared bounds.
type OutOfBoundsError struct {
	Parameter string
	Value     float64
	Min, Max  float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("parameter %q: value %g outside [%g, %g]", e.Parameter, e.Value, e.Min, e.Max)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

// NumericalInstabilityError reports a NaN/Inf residual or a singular Jacobian
// met by a fitter.
type NumericalInstabilityError struct {
	Iteration int
	Reason    string
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("numerical instability at iteration %d: %s", e.Iteration, e.Reason)
}

func (e *NumericalInstabilityError) Unwrap() error { return ErrNumericalInstability }

// NonConvergenceWarning records a pixel whose fit exhausted its budget. It is
// never returned as a failure; FitReport collects it.
type NonConvergenceWarning struct {
	Index      int
	Iterations int
	Cost       float64
}

func (w *NonConvergenceWarning) Error() string {
	return fmt.Sprintf("pixel %d did not converge after %d iterations (cost %g)", w.Index, w.Iterations, w.Cost)
}

func (w *NonConvergenceWarning) Unwrap() error { return ErrNonConvergence }
