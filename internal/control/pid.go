package control

// PID is the alternate control law: proportional-integral tracking around a
// drive bias, one integrator per heater channel. Channels share gains but
// accumulate error independently.
type PID struct {
	// Gain is the proportional gain on the setpoint error.
	Gain float64
	// IntegralGain scales the accumulated error.
	IntegralGain float64
	// Bias is the drive at zero error. The heater is unidirectional, so
	// the law is centered on a resting drive rather than signed; 0.5 by
	// default, tunable.
	Bias float64

	integrals []float64
}

// NewPID returns a PID law for the given number of heater channels.
func NewPID(gain, integralGain, bias float64, channels int) *PID {
	return &PID{
		Gain:         gain,
		IntegralGain: integralGain,
		Bias:         bias,
		integrals:    make([]float64, channels),
	}
}

// Reset zeroes every channel integrator. Called on mode (re)entry.
func (p *PID) Reset() {
	for i := range p.integrals {
		p.integrals[i] = 0
	}
}

// Integral exposes a channel's accumulated error, mainly for inspection.
func (p *PID) Integral(channel int) float64 { return p.integrals[channel] }

// Update advances one channel by one cycle and returns its drive fraction
// in [0,1]. Whenever the output saturates, the channel's integrator is
// reset to zero so it cannot wind up while the heater is pinned.
func (p *PID) Update(channel int, dt, temperature, setpoint float64) float64 {
	err := setpoint - temperature
	p.integrals[channel] += dt * err

	drive := p.Bias + p.Gain*err + p.IntegralGain*p.integrals[channel]
	if drive < 0 {
		p.integrals[channel] = 0
		return 0
	}
	if drive > 1 {
		p.integrals[channel] = 0
		return 1
	}
	return drive
}
