package metrics

import (
	"github.com/veloce-obs/thermoservo/internal/servo"
)

// HeaterDuty is the mean commanded heater fraction across all channels.
type HeaterDuty struct {
	name    string
	sum     float64
	samples int
}

func NewHeaterDuty() *HeaterDuty {
	return &HeaterDuty{name: "heater_duty"}
}

func (m *HeaterDuty) Name() string { return m.name }

func (m *HeaterDuty) Observe(c servo.Cycle) {
	for _, f := range c.Fractions {
		m.sum += f
		m.samples++
	}
}

func (m *HeaterDuty) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *HeaterDuty) Reset() {
	m.sum = 0
	m.samples = 0
}
