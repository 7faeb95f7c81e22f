package sim

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// psdFloor keeps power bins strictly positive so log scaling stays finite.
const psdFloor = 1e-20

// psdEstimator computes windowed power spectra of complex baseband.
type psdEstimator struct {
	size   int
	fft    *fourier.CmplxFFT
	window []float64
	in     []complex128
	out    []complex128
}

func newPSDEstimator(size int) *psdEstimator {
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)
	return &psdEstimator{
		size:   size,
		fft:    fourier.NewCmplxFFT(size),
		window: coeffs,
		in:     make([]complex128, size),
		out:    make([]complex128, size),
	}
}

// estimate returns the linear power of the last size samples of x, in FFT
// order. Shorter input is zero padded.
func (p *psdEstimator) estimate(x []complex64) []float32 {
	if len(x) > p.size {
		x = x[len(x)-p.size:]
	}
	for i := range p.in {
		if i < len(x) {
			p.in[i] = complex128(x[i]) * complex(p.window[i], 0)
		} else {
			p.in[i] = 0
		}
	}
	p.fft.Coefficients(p.out, p.in)

	norm := 1 / float64(p.size)
	psd := make([]float32, p.size)
	for i, c := range p.out {
		v := (real(c)*real(c) + imag(c)*imag(c)) * norm
		psd[i] = float32(v + psdFloor)
	}
	return psd
}
