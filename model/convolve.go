package model

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/eelsfit/signal"
)

// convolver convolves spectra with the normalized low-loss spectrum of a
// pixel. The zero-loss peak, taken at the low-loss maximum, maps to zero
// shift. It is not safe for concurrent use; each fit worker owns one.
type convolver struct {
	ll       *signal.Signal
	fft      *fourier.FFT
	channels int
	size     int

	llIndex int
	centre  int
	kernel  []complex128

	seq   []float64
	coeff []complex128
}

func newConvolver(ll *signal.Signal, channels int) *convolver {
	size := 1
	for size < 2*channels {
		size <<= 1
	}

	return &convolver{
		ll:       ll,
		fft:      fourier.NewFFT(size),
		channels: channels,
		size:     size,
		llIndex:  -1,
		seq:      make([]float64, size),
	}
}

// prepare loads the low-loss kernel of pixel index.
func (c *convolver) prepare(index int) {
	li := 0
	if c.ll.NavSize() > 1 {
		li = index
	}
	if li == c.llIndex {
		return
	}

	spec := c.ll.Spectrum(li)
	clear(c.seq)
	sum := floats.Sum(spec)
	if sum == 0 {
		c.seq[0] = 1
		c.centre = 0
	} else {
		for i, v := range spec {
			c.seq[i] = v / sum
		}
		c.centre = floats.MaxIdx(spec)
	}

	c.kernel = c.fft.Coefficients(c.kernel, c.seq)
	c.llIndex = li
}

// apply replaces y (one spectrum) with its convolution with the kernel.
func (c *convolver) apply(y []float64) {
	clear(c.seq)
	copy(c.seq, y)

	c.coeff = c.fft.Coefficients(c.coeff, c.seq)
	for i := range c.coeff {
		c.coeff[i] *= c.kernel[i]
	}
	c.seq = c.fft.Sequence(c.seq, c.coeff)

	scale := 1 / float64(c.size)
	for i := range y {
		y[i] = c.seq[i+c.centre] * scale
	}
}
