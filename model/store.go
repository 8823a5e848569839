package model

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/signal"
)

// ParameterMap is the per-pixel store of one parameter, indexed by flat
// navigation index.
type ParameterMap struct {
	Values []float64
	Std    []float64
	IsSet  []bool
}

func newParameterMap(n int, value float64) *ParameterMap {
	pm := &ParameterMap{
		Values: make([]float64, n),
		Std:    make([]float64, n),
		IsSet:  make([]bool, n),
	}
	for i := range pm.Values {
		pm.Values[i] = value
	}

	return pm
}

// Clone returns a deep copy.
func (pm *ParameterMap) Clone() ParameterMap {
	return ParameterMap{
		Values: slices.Clone(pm.Values),
		Std:    slices.Clone(pm.Std),
		IsSet:  slices.Clone(pm.IsSet),
	}
}

// StoredValue is the content of one store slot.
type StoredValue struct {
	Value float64
	Std   float64
	IsSet bool
}

// readable guards per-pixel reads: workers write the store without locks
// while a fit is running.
func (m *Model) readable() error {
	if m.busy.Load() {
		return errs.ErrModelBusy
	}

	return nil
}

func (m *Model) index(coord []int) (int, error) {
	return signal.FlatIndex(m.nav, coord)
}

// PixelValue returns the stored value of a parameter at coord.
func (m *Model) PixelValue(comp, param string, coord []int) (StoredValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.readable(); err != nil {
		return StoredValue{}, err
	}
	ci, pi, err := m.slot(comp, param)
	if err != nil {
		return StoredValue{}, err
	}
	idx, err := m.index(coord)
	if err != nil {
		return StoredValue{}, err
	}

	pm := m.maps[ci][pi]

	return StoredValue{Value: pm.Values[idx], Std: pm.Std[idx], IsSet: pm.IsSet[idx]}, nil
}

// SetPixelValue stores v for a parameter at coord and marks the slot set.
func (m *Model) SetPixelValue(comp, param string, coord []int, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	ci, pi, err := m.slot(comp, param)
	if err != nil {
		return err
	}
	idx, err := m.index(coord)
	if err != nil {
		return err
	}

	pm := m.maps[ci][pi]
	pm.Values[idx], pm.Std[idx], pm.IsSet[idx] = v, 0, true

	return nil
}

// StoreCurrentValues copies the current value of every parameter into the
// store at coord.
func (m *Model) StoreCurrentValues(coord []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	idx, err := m.index(coord)
	if err != nil {
		return err
	}

	for ci, c := range m.components {
		for pi, p := range c.Parameters() {
			pm := m.maps[ci][pi]
			pm.Values[idx], pm.Std[idx], pm.IsSet[idx] = p.Value(), 0, true
		}
	}

	return nil
}

// FetchStoredValues sets every parameter whose slot at coord is set to the
// stored value. Bounds and free flags are kept; the value is not checked
// against the bounds because it may come from an unbounded fit.
func (m *Model) FetchStoredValues(coord []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	idx, err := m.index(coord)
	if err != nil {
		return err
	}

	return m.fetchLocked(idx)
}

func (m *Model) fetchLocked(idx int) error {
	for ci, c := range m.components {
		for pi, p := range c.Parameters() {
			pm := m.maps[ci][pi]
			if !pm.IsSet[idx] {
				continue
			}
			st := p.State()
			st.Value = pm.Values[idx]
			if err := p.Restore(st); err != nil {
				return err
			}
		}
	}

	return nil
}

// BroadcastParameter copies the current value of a parameter into every
// pixel slot that has not been set yet, so it becomes the initial guess of
// those pixels.
func (m *Model) BroadcastParameter(comp, param string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	ci, pi, err := m.slot(comp, param)
	if err != nil {
		return err
	}
	m.broadcastLocked(ci, pi)

	return nil
}

// BroadcastAll broadcasts every parameter of a component.
func (m *Model) BroadcastAll(comp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	ci, ok := m.byName[comp]
	if !ok {
		return fmt.Errorf("%w: %q", errs.ErrUnknownComponent, comp)
	}
	for pi := range m.components[ci].Parameters() {
		m.broadcastLocked(ci, pi)
	}

	return nil
}

func (m *Model) broadcastLocked(ci, pi int) {
	v := m.components[ci].Parameters()[pi].Value()
	pm := m.maps[ci][pi]
	for i, set := range pm.IsSet {
		if !set {
			pm.Values[i] = v
		}
	}
}

// StoredMap returns a deep copy of the per-pixel store of a parameter.
func (m *Model) StoredMap(comp, param string) (ParameterMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.readable(); err != nil {
		return ParameterMap{}, err
	}
	ci, pi, err := m.slot(comp, param)
	if err != nil {
		return ParameterMap{}, err
	}

	return m.maps[ci][pi].Clone(), nil
}

// RestoreMap replaces the per-pixel store of a parameter.
func (m *Model) RestoreMap(comp, param string, pm ParameterMap) error {
	n := m.navSize
	if len(pm.Values) != n || len(pm.Std) != n || len(pm.IsSet) != n {
		return fmt.Errorf("%w: map of %d/%d/%d entries for %d pixels",
			errs.ErrInvalidShape, len(pm.Values), len(pm.Std), len(pm.IsSet), n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.CheckMutable(); err != nil {
		return err
	}
	ci, pi, err := m.slot(comp, param)
	if err != nil {
		return err
	}

	cp := pm.Clone()
	m.maps[ci][pi] = &cp

	return nil
}

// ParameterMap returns the stored values of a parameter reshaped for display:
// rows × columns where columns is the last navigation dimension. A signal
// without navigation gives a 1×1 matrix; a line scan gives 1×n.
func (m *Model) ParameterMap(comp, param string) (*mat.Dense, error) {
	pm, err := m.StoredMap(comp, param)
	if err != nil {
		return nil, err
	}

	rows, cols := 1, 1
	if len(m.nav) > 0 {
		cols = m.nav[len(m.nav)-1]
		rows = m.navSize / cols
	}

	return mat.NewDense(rows, cols, pm.Values), nil
}

// initialValues writes the starting parameter vector of a component at idx:
// stored values where set, current values otherwise.
func (m *Model) initialValues(ci int, params []*component.Parameter, idx int, dst []float64) {
	for pi, p := range params {
		pm := m.maps[ci][pi]
		if pm.IsSet[idx] {
			dst[pi] = pm.Values[idx]
		} else {
			dst[pi] = p.Value()
		}
	}
}
