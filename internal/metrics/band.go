package metrics

import (
	"math"

	"github.com/veloce-obs/thermoservo/internal/servo"
)

// InBand is the fraction of cycles whose channel-0 temperature sits within
// a band around the setpoint.
type InBand struct {
	name    string
	bandK   float64
	inside  int
	samples int
}

func NewInBand(bandK float64) *InBand {
	return &InBand{name: "in_band", bandK: bandK}
}

func (m *InBand) Name() string { return m.name }

func (m *InBand) Observe(c servo.Cycle) {
	if len(c.Temps) == 0 {
		return
	}
	m.samples++
	if math.Abs(c.Temps[0]-c.Setpoint) <= m.bandK {
		m.inside++
	}
}

func (m *InBand) Value() float64 {
	if m.samples == 0 {
		return 1.0
	}
	return float64(m.inside) / float64(m.samples)
}

func (m *InBand) Reset() {
	m.inside = 0
	m.samples = 0
}
