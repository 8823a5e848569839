package signal

import (
	"fmt"
	"math"

	"github.com/arloliu/eelsfit/errs"
)

// axisTolerance is the relative tolerance used by Axis.Equal.
const axisTolerance = 1e-9

// Axis is a uniform axis: value(i) = Offset + i·Scale for i in [0, Size).
type Axis struct {
	Name   string
	Units  string
	Offset float64
	Scale  float64
	Size   int
}

// NewEnergyAxis returns an energy-loss axis in eV.
func NewEnergyAxis(offset, scale float64, size int) Axis {
	return Axis{Name: "Energy loss", Units: "eV", Offset: offset, Scale: scale, Size: size}
}

// Validate reports whether the axis is usable.
func (a Axis) Validate() error {
	if a.Size <= 0 {
		return fmt.Errorf("%w: axis %q has size %d", errs.ErrInvalidShape, a.Name, a.Size)
	}
	if a.Scale == 0 || math.IsNaN(a.Scale) || math.IsInf(a.Scale, 0) {
		return fmt.Errorf("%w: axis %q has scale %g", errs.ErrInvalidShape, a.Name, a.Scale)
	}
	if math.IsNaN(a.Offset) || math.IsInf(a.Offset, 0) {
		return fmt.Errorf("%w: axis %q has offset %g", errs.ErrInvalidShape, a.Name, a.Offset)
	}

	return nil
}

// Value returns the axis value at index i.
func (a Axis) Value(i int) float64 {
	return a.Offset + float64(i)*a.Scale
}

// Values returns all axis values.
func (a Axis) Values() []float64 {
	out := make([]float64, a.Size)
	for i := range out {
		out[i] = a.Value(i)
	}

	return out
}

// End returns the value of the last channel.
func (a Axis) End() float64 {
	return a.Value(a.Size - 1)
}

// ValueIndex returns the index of the channel nearest v, clamped to the axis.
func (a Axis) ValueIndex(v float64) int {
	i := int(math.Round((v - a.Offset) / a.Scale))

	return max(0, min(a.Size-1, i))
}

// Equal reports whether two axes describe the same channels. Names and units
// are ignored; offsets and scales are compared with a relative tolerance.
func (a Axis) Equal(b Axis) bool {
	return a.Size == b.Size &&
		closeEnough(a.Offset, b.Offset, a.Scale) &&
		closeEnough(a.Scale, b.Scale, a.Scale)
}

// Describe returns a short human-readable description, used in error messages.
func (a Axis) Describe() string {
	return fmt.Sprintf("%d channels from %g %s step %g", a.Size, a.Offset, a.Units, a.Scale)
}

func closeEnough(x, y, ref float64) bool {
	scale := math.Max(math.Max(math.Abs(x), math.Abs(y)), math.Abs(ref))
	if scale == 0 {
		return true
	}

	return math.Abs(x-y) <= axisTolerance*scale
}
