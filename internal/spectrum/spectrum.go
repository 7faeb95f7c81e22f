// Package spectrum prepares inspector spectrum frames for display.
package spectrum

import "math"

// DefaultHeadroom is the display headroom, in log10 units, added above the
// frame maximum to form the ceiling. It is a display convention rather than
// a calibration and can be overridden through configuration.
const DefaultHeadroom float32 = 5

// Transform converts a frame of linear power samples to display units in place.
//
// Every sample becomes log10(x) minus the ceiling, where the ceiling is the
// frame maximum plus headroom, and the two halves of the frame are swapped so
// the zero-frequency bin lands in the middle. For even N:
//
//	out[i] = log10(in[i+N/2]) - ceiling   for i <  N/2
//	out[i] = log10(in[i-N/2]) - ceiling   for i >= N/2
//
// For odd N the trailing element keeps its position and is scaled as well.
// Transform is not idempotent; never apply it to its own output.
// It returns the ceiling used.
func Transform(frame []float32, headroom float32) float32 {
	n := len(frame)
	if n == 0 {
		return headroom
	}

	peak := float32(math.Inf(-1))
	for i, x := range frame {
		v := float32(math.Log10(float64(x)))
		frame[i] = v
		if v > peak {
			peak = v
		}
	}

	// frames of zeros have no finite maximum
	if math.IsInf(float64(peak), -1) {
		peak = 0
	}
	ceiling := peak + headroom

	half := n / 2
	p := half
	for i := range half {
		front := frame[i]
		frame[i] = frame[p] - ceiling
		frame[p] = front - ceiling
		if p++; p == n {
			p = 0
		}
	}

	if n%2 == 1 {
		frame[n-1] -= ceiling
	}

	return ceiling
}
