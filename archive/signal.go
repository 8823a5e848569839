package archive

import (
	"fmt"

	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/format"
	"github.com/arloliu/eelsfit/internal/options"
	"github.com/arloliu/eelsfit/section"
	"github.com/arloliu/eelsfit/signal"
)

// maxNavDims bounds the navigation rank stored in one byte.
const maxNavDims = 255

// SaveSignal encodes a spectrum image with its axes and title.
func SaveSignal(s *signal.Signal, opts ...Option) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil signal", errs.ErrInvalidShape)
	}

	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	h := newHeader(format.KindSignal, cfg)
	h.NavSize = uint32(s.NavSize())   //nolint:gosec
	h.Channels = uint32(s.Channels()) //nolint:gosec

	w := newPayloadWriter(h)
	defer w.release()

	if err := writeAxis(w, s.Axis()); err != nil {
		return nil, err
	}
	if err := w.str(s.Title()); err != nil {
		return nil, err
	}
	if err := writeNav(w, s.NavShape()); err != nil {
		return nil, err
	}
	for _, a := range s.NavigationAxes() {
		if err := writeAxis(w, a); err != nil {
			return nil, err
		}
	}
	w.floats(s.Data())

	return w.seal(h, cfg.Logger)
}

// LoadSignal decodes an archive written by SaveSignal.
func LoadSignal(data []byte) (*signal.Signal, error) {
	h, payload, err := open(data, format.KindSignal)
	if err != nil {
		return nil, err
	}
	r, err := newPayloadReader(h, payload)
	if err != nil {
		return nil, err
	}

	axis := readAxis(r)
	title := r.str()
	nav := readNav(r)
	navAxes := make([]signal.Axis, len(nav))
	for i := range navAxes {
		navAxes[i] = readAxis(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := checkShape(h, axis, nav); err != nil {
		return nil, err
	}

	values := r.floats(int(h.NavSize) * axis.Size)
	if err := r.done(); err != nil {
		return nil, err
	}

	return signal.New(values, nav, axis, signal.WithTitle(title), signal.WithNavigationAxes(navAxes...))
}

func newHeader(kind format.ArchiveKind, cfg Config) *section.Header {
	h := section.NewHeader(kind)
	h.Flag.SetBigEndian(cfg.BigEndian)
	h.Flag.SetValueEncoding(cfg.ValueEncoding)
	h.Flag.SetCompression(cfg.Compression)

	return h
}

func writeAxis(w *payloadWriter, a signal.Axis) error {
	if err := w.str(a.Name); err != nil {
		return err
	}
	if err := w.str(a.Units); err != nil {
		return err
	}
	w.f64(a.Offset)
	w.f64(a.Scale)
	w.u32(a.Size)

	return nil
}

func readAxis(r *payloadReader) signal.Axis {
	return signal.Axis{
		Name:   r.str(),
		Units:  r.str(),
		Offset: r.f64(),
		Scale:  r.f64(),
		Size:   r.u32(),
	}
}

func writeNav(w *payloadWriter, nav []int) error {
	if len(nav) > maxNavDims {
		return fmt.Errorf("%w: %d navigation dimensions", errs.ErrInvalidShape, len(nav))
	}
	w.u8(uint8(len(nav))) //nolint:gosec
	for _, n := range nav {
		w.u32(n)
	}

	return nil
}

func readNav(r *payloadReader) []int {
	nav := make([]int, r.u8())
	for i := range nav {
		nav[i] = r.u32()
	}

	return nav
}

// checkShape compares the decoded axis and navigation shape with the header.
func checkShape(h section.Header, axis signal.Axis, nav []int) error {
	if err := axis.Validate(); err != nil {
		return err
	}
	if axis.Size != int(h.Channels) {
		return fmt.Errorf("%w: axis of %d channels, header says %d", errs.ErrInvalidShape, axis.Size, h.Channels)
	}

	size := 1
	for _, n := range nav {
		if n <= 0 {
			return fmt.Errorf("%w: navigation shape %v", errs.ErrInvalidShape, nav)
		}
		size *= n
	}
	if size != int(h.NavSize) {
		return fmt.Errorf("%w: navigation shape %v, header says %d pixels", errs.ErrInvalidShape, nav, h.NavSize)
	}

	return nil
}
