// Package analysis post-processes recorded temperature runs: noise
// statistics and a power spectrum for spotting periodic disturbances such
// as HVAC cycling.
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Spectrum is a one-sided power spectrum of a uniformly sampled series.
type Spectrum struct {
	// Freqs holds bin center frequencies in Hz, excluding DC.
	Freqs []float64
	// Power holds the magnitude at each bin.
	Power []float64
}

// PowerSpectrum computes the one-sided spectrum of data sampled every dt
// seconds. The mean is removed first so slow drift does not swamp the
// bins of interest.
func PowerSpectrum(data []float64, dt float64) (*Spectrum, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("need at least 4 samples, got %d", len(data))
	}
	if dt <= 0 {
		return nil, fmt.Errorf("sample period must be positive, got %g", dt)
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	n := len(centered)
	bins := n / 2

	s := &Spectrum{
		Freqs: make([]float64, 0, bins-1),
		Power: make([]float64, 0, bins-1),
	}
	for k := 1; k < bins; k++ {
		s.Freqs = append(s.Freqs, float64(k)/(float64(n)*dt))
		s.Power = append(s.Power, cmplx.Abs(coeffs[k])/float64(n))
	}
	return s, nil
}

// DominantPeriod returns the period in seconds of the strongest bin.
func (s *Spectrum) DominantPeriod() float64 {
	best := 0
	for i := range s.Power {
		if s.Power[i] > s.Power[best] {
			best = i
		}
	}
	return 1.0 / s.Freqs[best]
}

// Stats summarizes a temperature series against its setpoint.
type Stats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	RMS    float64 // deviation from setpoint
}

func Summarize(data []float64, setpoint float64) (Stats, error) {
	if len(data) == 0 {
		return Stats{}, fmt.Errorf("empty series")
	}
	st := Stats{Min: data[0], Max: data[0]}
	for _, v := range data {
		st.Mean += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		e := v - setpoint
		st.RMS += e * e
	}
	n := float64(len(data))
	st.Mean /= n
	st.RMS = math.Sqrt(st.RMS / n)

	for _, v := range data {
		d := v - st.Mean
		st.StdDev += d * d
	}
	st.StdDev = math.Sqrt(st.StdDev / n)
	return st, nil
}
