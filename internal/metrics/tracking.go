// Package metrics scores servo runs: tracking error, heater duty, and time
// spent inside the control band.
package metrics

import (
	"math"

	"github.com/veloce-obs/thermoservo/internal/servo"
)

// TrackingError is the RMS deviation of the channel-0 temperature from the
// setpoint over the observed cycles.
type TrackingError struct {
	name    string
	sumSq   float64
	samples int
}

func NewTrackingError() *TrackingError {
	return &TrackingError{name: "tracking_rms_k"}
}

func (m *TrackingError) Name() string { return m.name }

func (m *TrackingError) Observe(c servo.Cycle) {
	if len(c.Temps) == 0 {
		return
	}
	e := c.Temps[0] - c.Setpoint
	m.sumSq += e * e
	m.samples++
}

func (m *TrackingError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingError) Reset() {
	m.sumSq = 0
	m.samples = 0
}
