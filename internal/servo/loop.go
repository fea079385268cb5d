package servo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/control"
	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/plant"
)

// Loop is one servo instance. It owns the estimator and PID state
// exclusively; everything shared with the command path sits behind mu.
type Loop struct {
	cfg       *config.Config
	log       *logging.Logger
	sensors   Sensors
	actuators Actuators
	recorder  Recorder
	model     *plant.Model

	mu        sync.Mutex
	mode      Mode
	setpoint  float64
	gains     *control.GainSet
	est       *control.Estimator
	pid       *control.PID
	reg       control.Regulator
	recording bool
	recorded  int
	cycles    uint64
	fractions []float64 // last commanded drive per channel
	volts     []float64 // last raw readings
	temps     []float64 // last converted temperatures
	observers []Observer
}

// New validates the configuration and derives the plant model. Riccati
// gains are deferred to LQG mode entry so a diverging solve cannot prevent
// manual or PID operation.
func New(cfg *config.Config, sensors Sensors, actuators Actuators, recorder Recorder, log *logging.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := plant.Derive(cfg.Plant, cfg.Dt)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:       cfg,
		log:       log,
		sensors:   sensors,
		actuators: actuators,
		recorder:  recorder,
		model:     model,
		setpoint:  cfg.Setpoint,
		est:       control.NewEstimator(model.Order()),
		pid:       control.NewPID(cfg.PID.Gain, cfg.PID.IntegralGain, cfg.PID.Bias, len(cfg.Channels)),
		reg:       control.Regulator{HeaterMax: model.HeaterMax},
		fractions: make([]float64, len(cfg.Channels)),
	}, nil
}

// AddObserver registers a per-cycle observer. Not safe to call once Run has
// started.
func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

// Model exposes the derived plant model.
func (l *Loop) Model() *plant.Model { return l.model }

// Run executes the loop at the configured period until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	period := time.Duration(l.cfg.Dt * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	l.log.Infof("servo loop started, period %s, %d channel(s)", period, len(l.cfg.Channels))
	for {
		select {
		case <-ctx.Done():
			l.log.Infof("servo loop stopped after %d cycles", l.Status().Cycles)
			return ctx.Err()
		case now := <-ticker.C:
			l.Step(ctx, now)
		}
	}
}

// Step executes a single servo cycle. Exposed so the closed-loop simulator
// can drive the loop faster than real time.
func (l *Loop) Step(ctx context.Context, now time.Time) {
	volts, err := l.readSensors(ctx)
	if err != nil {
		// Skip the cycle: prior command and estimator state stay as
		// they are. The loop itself never dies on hardware faults.
		l.mu.Lock()
		l.cycles++
		c := Cycle{Time: now, Index: l.cycles, Mode: l.mode, Setpoint: l.setpoint, Skipped: true}
		obs := l.observers
		l.mu.Unlock()
		l.log.Warnf("cycle %d: sensor read failed twice, skipping: %v", c.Index, err)
		for _, o := range obs {
			o.OnCycle(c)
		}
		return
	}

	temps := make([]float64, len(volts))
	for i, v := range volts {
		temps[i] = l.cfg.Thermistor.Temperature(v)
	}

	l.mu.Lock()
	l.cycles++
	l.volts = volts
	l.temps = temps

	c := Cycle{
		Time:     now,
		Index:    l.cycles,
		Mode:     l.mode,
		Setpoint: l.setpoint,
		Volts:    volts,
		Temps:    temps,
	}

	switch l.mode {
	case ModeLQG:
		l.stepLQG(&c)
	case ModePID:
		l.stepPID(&c)
	case ModeIdle:
		// Hold the last commanded drive; an idle servo must not fight
		// a manual override.
	}
	c.Fractions = append([]float64(nil), l.fractions...)

	if l.recording && l.recorder != nil {
		if err := l.recorder.Append(now, temps); err != nil {
			l.log.Errorf("cycle %d: recorder append: %v", c.Index, err)
		} else {
			l.recorded++
			if l.recorded >= l.cfg.RecordLimit {
				l.recording = false
				l.log.Infof("record limit of %d samples reached, recording stopped", l.cfg.RecordLimit)
			}
		}
	}
	obs := l.observers
	l.mu.Unlock()

	for _, o := range obs {
		o.OnCycle(c)
	}
}

// readSensors performs the bounded hardware read with one immediate retry.
func (l *Loop) readSensors(ctx context.Context) ([]float64, error) {
	timeout := time.Duration(l.cfg.SensorTimeout * float64(time.Second))

	read := func() ([]float64, error) {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		volts, err := l.sensors.Read(rctx)
		if err != nil {
			return nil, err
		}
		if len(volts) != len(l.cfg.Sensors) {
			return nil, fmt.Errorf("read %d channels, configured %d", len(volts), len(l.cfg.Sensors))
		}
		return volts, nil
	}

	volts, err := read()
	if err == nil {
		return volts, nil
	}
	return read()
}

// stepLQG runs estimator, regulator, and actuator output. Caller holds mu.
func (l *Loop) stepLQG(c *Cycle) {
	sensed := c.Temps[l.cfg.Channels[0].Sensor]
	deviation := sensed - l.setpoint

	if err := l.est.Update(l.model, l.gains, deviation); err != nil {
		l.log.Errorf("cycle %d: estimator: %v", c.Index, err)
		return
	}
	raw, fraction, err := l.reg.Compute(l.gains, l.est.State())
	if err != nil {
		l.log.Errorf("cycle %d: regulator: %v", c.Index, err)
		return
	}
	// Next cycle's prediction uses the power actually applied, not the
	// unclamped demand.
	l.est.SetInput(fraction * l.model.HeaterMax)

	x := l.est.State()
	c.RawWatts = raw
	c.EstAmbient = x.At(0, 0) + l.setpoint
	c.EstPlate = x.At(1, 0) + l.setpoint

	for i := range l.cfg.Channels {
		l.writeHeater(i, fraction, c.Index)
	}

	l.log.Debugf("cycle %d: lqg u=%9.6f W frac=%9.6f temp=%9.6f est_ambient=%9.4f",
		c.Index, raw, fraction, sensed, c.EstAmbient)
}

// stepPID runs the alternate law per channel. Caller holds mu.
func (l *Loop) stepPID(c *Cycle) {
	for i, ch := range l.cfg.Channels {
		temp := c.Temps[ch.Sensor]
		fraction := l.pid.Update(i, l.cfg.Dt, temp, l.setpoint)
		l.writeHeater(i, fraction, c.Index)
		l.log.Debugf("cycle %d: pid ch=%d frac=%9.6f temp=%9.6f", c.Index, i, fraction, temp)
	}
}

// writeHeater commands one channel and remembers the value. Write failures
// are reported but never stop the loop: halting could leave a heater stuck
// at a fixed duty cycle.
func (l *Loop) writeHeater(channel int, fraction float64, cycle uint64) {
	if err := l.actuators.Set(channel, fraction); err != nil {
		l.log.Errorf("cycle %d: actuator channel %d: %v", cycle, channel, err)
		return
	}
	l.fractions[channel] = fraction
}
