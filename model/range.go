package model

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/eelsfit/errs"
)

// SetSignalRange restricts subsequent fits to channels with energy in
// [lo, hi]. Stored parameter values are not touched.
//
// Returns errs.ErrInvalidRange for lo > hi or NaN, and errs.ErrEmptySignalRange
// when no channel falls inside; the current range is kept in both cases.
func (m *Model) SetSignalRange(lo, hi float64) error {
	return m.updateMask(lo, hi, func(mask []bool, i int, in bool) { mask[i] = in })
}

// AddSignalRange adds the channels in [lo, hi] to the current range.
func (m *Model) AddSignalRange(lo, hi float64) error {
	return m.updateMask(lo, hi, func(mask []bool, i int, in bool) { mask[i] = mask[i] || in })
}

// RemoveSignalRange removes the channels in [lo, hi] from the current range.
func (m *Model) RemoveSignalRange(lo, hi float64) error {
	return m.updateMask(lo, hi, func(mask []bool, i int, in bool) { mask[i] = mask[i] && !in })
}

// ResetSignalRange restores the full energy axis.
func (m *Model) ResetSignalRange() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	for i := range m.mask {
		m.mask[i] = true
	}

	return nil
}

// SignalMask returns a copy of the channel mask; true channels take part in fits.
func (m *Model) SignalMask() []bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.mask)
}

// SetSignalMask replaces the channel mask.
func (m *Model) SetSignalMask(mask []bool) error {
	if len(mask) != m.axis.Size {
		return fmt.Errorf("%w: mask of %d channels for an axis of %d", errs.ErrInvalidShape, len(mask), m.axis.Size)
	}
	if !slices.Contains(mask, true) {
		return errs.ErrEmptySignalRange
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	copy(m.mask, mask)

	return nil
}

func (m *Model) updateMask(lo, hi float64, apply func(mask []bool, i int, in bool)) error {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return fmt.Errorf("%w: [%g, %g]", errs.ErrInvalidRange, lo, hi)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}

	// Channel energies are compared with a small tolerance so that range ends
	// given at channel values select those channels.
	tol := 1e-9 * math.Abs(m.axis.Scale)
	next := slices.Clone(m.mask)
	for i := range next {
		e := m.axis.Value(i)
		apply(next, i, e >= lo-tol && e <= hi+tol)
	}
	if !slices.Contains(next, true) {
		return fmt.Errorf("%w: [%g, %g] on %s", errs.ErrEmptySignalRange, lo, hi, m.axis.Describe())
	}
	m.mask = next

	return nil
}
