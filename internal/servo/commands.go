package servo

import (
	"errors"
	"fmt"

	"github.com/veloce-obs/thermoservo/internal/control"
	"github.com/veloce-obs/thermoservo/internal/logging"
)

// ErrNotIdle is returned for manual heater commands while a control law
// owns the outputs.
var ErrNotIdle = errors.New("servo: manual heater control requires idle mode")

// SetMode switches the control law, taking effect at the next cycle.
// Entering LQG solves for the steady-state gains once and caches them; the
// model is fixed, so the gains are cycle-invariant until the configuration
// changes. A failed solve leaves the loop in its prior mode and returns the
// error to the caller.
func (l *Loop) SetMode(m Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m == l.mode {
		return nil
	}
	switch m {
	case ModeLQG:
		if l.gains == nil {
			gains, err := control.DeriveGains(l.model)
			if err != nil {
				l.log.Errorf("lqg mode refused, staying in %s: %v", l.mode, err)
				return err
			}
			l.gains = gains
			l.log.Infof("gains derived: K=[%g %g] L=[%g %g]",
				gains.K.At(0, 0), gains.K.At(1, 0), gains.L.At(0, 0), gains.L.At(0, 1))
		}
		l.est.Reset()
	case ModePID:
		l.pid.Reset()
	case ModeIdle:
		// Outputs hold their last value.
	default:
		return fmt.Errorf("servo: unknown mode %d", m)
	}

	l.log.Infof("mode %s -> %s", l.mode, m)
	l.mode = m
	return nil
}

// ModeNow returns the currently selected mode.
func (l *Loop) ModeNow() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetSetpoint changes the target temperature for all channels.
func (l *Loop) SetSetpoint(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.Infof("setpoint %9.6f -> %9.6f", l.setpoint, v)
	l.setpoint = v
}

// Setpoint returns the current target temperature.
func (l *Loop) Setpoint() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setpoint
}

// SetRecording starts or stops appending cycle temperatures to the
// recorder. Starting resets the sample budget.
func (l *Loop) SetRecording(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if on && !l.recording {
		l.recorded = 0
	}
	l.recording = on
	l.log.Infof("recording %v", on)
}

// SetVerbose raises or restores the log level for per-cycle detail.
func (l *Loop) SetVerbose(on bool) {
	if on {
		l.log.SetLevel(logging.DEBUG)
	} else {
		l.log.SetLevel(logging.ParseLevel(l.cfg.Logging.Level))
	}
	l.log.Infof("verbose %v", on)
}

// ManualHeater drives one channel directly. Only honored in idle mode so a
// running control law and an operator never fight over the same output.
func (l *Loop) ManualHeater(channel int, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("servo: fraction %g outside [0,1]", fraction)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if channel < 0 || channel >= len(l.cfg.Channels) {
		return fmt.Errorf("servo: heater channel %d out of range", channel)
	}
	if l.mode != ModeIdle {
		return ErrNotIdle
	}
	if err := l.actuators.Set(channel, fraction); err != nil {
		return err
	}
	l.fractions[channel] = fraction
	l.log.Infof("manual heater %d set to %9.6f", channel, fraction)
	return nil
}

// Gains returns the cached gain set, or nil when LQG mode has not been
// entered yet.
func (l *Loop) Gains() *control.GainSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gains
}

// Status snapshots the loop state for the command interface.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Mode:      l.mode,
		Setpoint:  l.setpoint,
		Cycles:    l.cycles,
		Recording: l.recording,
		Recorded:  l.recorded,
		Volts:     append([]float64(nil), l.volts...),
		Temps:     append([]float64(nil), l.temps...),
		Fractions: append([]float64(nil), l.fractions...),
	}
}
