package archive

import (
	"fmt"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/collision"
	"github.com/arloliu/eelsfit/internal/hash"
	"github.com/arloliu/eelsfit/internal/options"
	"github.com/arloliu/eelsfit/model"
)

// Component flag bits.
const (
	flagActive    = 1 << 0
	flagConvolved = 1 << 1
)

// maxParameters bounds the parameter count stored in one byte.
const maxParameters = 255

// SaveModel encodes a model: its energy axis, navigation shape, signal mask,
// components (kind, name, active and convolution flags, configuration),
// parameters (value, bounds, free flag) and every per-pixel map.
//
// The target and low-loss signals are not included; save them with
// SaveSignal. SaveModel fails with errs.ErrModelBusy while a fit is running.
func SaveModel(m *model.Model, opts ...Option) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", errs.ErrInvalidConfig)
	}
	if err := m.CheckMutable(); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	comps := m.Components()
	axis := m.Axis()

	h := newHeader(format.KindModel, cfg)
	h.NavSize = uint32(m.NavSize())       //nolint:gosec
	h.Channels = uint32(axis.Size)        //nolint:gosec
	h.ComponentCount = uint32(len(comps)) //nolint:gosec

	w := newPayloadWriter(h)
	defer w.release()

	if err := writeAxis(w, axis); err != nil {
		return nil, err
	}
	if err := writeNav(w, m.NavShape()); err != nil {
		return nil, err
	}
	w.bits(m.SignalMask())

	tracker := collision.NewTracker()
	for _, c := range comps {
		id := hash.ID(c.Name())
		if err := tracker.Track(c.Name(), id); err != nil {
			return nil, fmt.Errorf("component %q: %w", c.Name(), err)
		}
		if err := writeComponent(w, c, id); err != nil {
			return nil, err
		}

		for _, p := range c.Parameters() {
			pm, err := m.StoredMap(c.Name(), p.Name())
			if err != nil {
				return nil, err
			}
			w.floats(pm.Values)
			w.floats(pm.Std)
			w.bits(pm.IsSet)
		}
	}
	h.Flag.SetCollision(tracker.HasCollision())

	return w.seal(h, cfg.Logger)
}

func writeComponent(w *payloadWriter, c component.Component, id uint64) error {
	if err := w.str(c.Kind()); err != nil {
		return fmt.Errorf("component %q kind: %w", c.Name(), err)
	}
	if err := w.str(c.Name()); err != nil {
		return fmt.Errorf("component %q: %w", c.Name(), err)
	}

	var flags uint8
	if c.Active() {
		flags |= flagActive
	}
	if cv, ok := c.(component.Convolvable); ok && cv.Convolved() {
		flags |= flagConvolved
	}
	w.u64(id)
	w.u8(flags)

	var config []float64
	if cc, ok := c.(component.Configurable); ok {
		config = cc.Config()
	}
	w.u32(len(config))
	for _, v := range config {
		w.f64(v)
	}

	params := c.Parameters()
	if len(params) > maxParameters {
		return fmt.Errorf("%w: component %q has %d parameters", errs.ErrInvalidConfig, c.Name(), len(params))
	}
	w.u8(uint8(len(params))) //nolint:gosec
	for _, p := range params {
		st := p.State()
		if err := w.str(st.Name); err != nil {
			return fmt.Errorf("component %q parameter: %w", c.Name(), err)
		}
		w.f64(st.Value)
		w.f64(st.Min)
		w.f64(st.Max)
		free := uint8(0)
		if st.Free {
			free = 1
		}
		w.u8(free)
	}

	return nil
}

// LoadModel decodes an archive written by SaveModel into a detached model.
// Call Model.Attach to bind a target signal before fitting; opts configure
// the rebuilt model, e.g. model.WithLowLoss.
//
// Components are rebuilt through component.New, so custom kinds must be
// registered before loading.
func LoadModel(data []byte, opts ...model.Option) (*model.Model, error) {
	h, payload, err := open(data, format.KindModel)
	if err != nil {
		return nil, err
	}
	r, err := newPayloadReader(h, payload)
	if err != nil {
		return nil, err
	}

	axis := readAxis(r)
	nav := readNav(r)
	if r.err != nil {
		return nil, r.err
	}
	if err := checkShape(h, axis, nav); err != nil {
		return nil, err
	}
	mask := r.bits(axis.Size)

	n := int(h.NavSize)
	comps := make([]component.Component, 0, h.ComponentCount)
	maps := make([][]model.ParameterMap, 0, h.ComponentCount)
	tracker := collision.NewTracker()

	for range h.ComponentCount {
		c, err := readComponent(r, tracker)
		if err != nil {
			return nil, err
		}

		pms := make([]model.ParameterMap, len(c.Parameters()))
		for i := range pms {
			pms[i] = model.ParameterMap{Values: r.floats(n), Std: r.floats(n), IsSet: r.bits(n)}
		}
		if r.err != nil {
			return nil, r.err
		}

		comps = append(comps, c)
		maps = append(maps, pms)
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	if tracker.HasCollision() != h.Flag.HasCollision() {
		return nil, fmt.Errorf("%w: header flag %t, names %v", errs.ErrHashCollision, h.Flag.HasCollision(), tracker.Names())
	}

	m, err := model.NewDetached(axis, nav, comps, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.SetSignalMask(mask); err != nil {
		return nil, err
	}
	for ci, c := range comps {
		for pi, p := range c.Parameters() {
			if err := m.RestoreMap(c.Name(), p.Name(), maps[ci][pi]); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func readComponent(r *payloadReader, tracker *collision.Tracker) (component.Component, error) {
	kind := r.str()
	name := r.str()
	id := r.u64()
	flags := r.u8()
	config := make([]float64, r.u32())
	for i := range config {
		config[i] = r.f64()
	}
	if r.err != nil {
		return nil, r.err
	}

	if hash.ID(name) != id {
		return nil, fmt.Errorf("%w: component %q id 0x%016x", errs.ErrChecksumMismatch, name, id)
	}
	if err := tracker.Track(name, id); err != nil {
		return nil, fmt.Errorf("component %q: %w", name, err)
	}

	c, err := component.New(kind, name, config)
	if err != nil {
		return nil, err
	}

	params := c.Parameters()
	if count := int(r.u8()); count != len(params) {
		return nil, fmt.Errorf("%w: %s %q has %d parameters, archive has %d", errs.ErrInvalidConfig, kind, name, len(params), count)
	}
	for _, p := range params {
		st := component.ParameterState{Name: r.str(), Value: r.f64(), Min: r.f64(), Max: r.f64(), Free: r.u8() != 0}
		if r.err != nil {
			return nil, r.err
		}
		if st.Name != p.Name() {
			return nil, fmt.Errorf("%w: %s %q parameter %q, archive has %q", errs.ErrUnknownParameter, kind, name, p.Name(), st.Name)
		}
		if err := p.Restore(st); err != nil {
			return nil, err
		}
	}

	if err := c.SetActive(flags&flagActive != 0); err != nil {
		return nil, err
	}
	if flags&flagConvolved != 0 {
		cv, ok := c.(component.Convolvable)
		if !ok {
			return nil, fmt.Errorf("%w: %s %q cannot be convolved", errs.ErrInvalidConfig, kind, name)
		}
		if err := cv.SetConvolved(true); err != nil {
			return nil, err
		}
	}

	return c, nil
}
