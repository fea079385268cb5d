// Package sim runs the servo loop closed on the simulated rig as fast as
// the CPU allows and scores the run with pluggable metrics.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
)

// Metric accumulates a score over a run's cycles.
type Metric interface {
	Name() string
	Observe(c servo.Cycle)
	Value() float64
	Reset()
}

// Config shapes one batch run.
type Config struct {
	Cycles int
	Mode   servo.Mode

	// DisturbCycle and DisturbKelvin inject an ambient step partway
	// through the run. Zero DisturbKelvin disables it.
	DisturbCycle  int
	DisturbKelvin float64
}

// Result is one run's trajectory plus final metric values.
type Result struct {
	Times     []float64
	Temps     []float64
	Fractions []float64
	Setpoint  float64
	Skipped   int
	Metrics   map[string]float64
}

// Runner drives a loop and a rig in lockstep.
type Runner struct {
	loop    *servo.Loop
	rig     *rig.Rig
	dt      float64
	metrics []Metric
}

func New(loop *servo.Loop, r *rig.Rig, dt float64) *Runner {
	return &Runner{loop: loop, rig: r, dt: dt}
}

func (r *Runner) AddMetric(m Metric) { r.metrics = append(r.metrics, m) }

type capture struct {
	last servo.Cycle
	got  bool
}

func (c *capture) OnCycle(cyc servo.Cycle) {
	c.last = cyc
	c.got = true
}

// Run executes cfg.Cycles servo periods and returns the trajectory. The
// context cancels between cycles.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Cycles <= 0 {
		return nil, fmt.Errorf("cycles must be positive, got %d", cfg.Cycles)
	}
	if err := r.loop.SetMode(cfg.Mode); err != nil {
		return nil, err
	}
	for _, m := range r.metrics {
		m.Reset()
	}

	rec := &capture{}
	r.loop.AddObserver(rec)

	result := &Result{
		Times:     make([]float64, 0, cfg.Cycles),
		Temps:     make([]float64, 0, cfg.Cycles),
		Fractions: make([]float64, 0, cfg.Cycles),
		Setpoint:  r.loop.Setpoint(),
		Metrics:   make(map[string]float64),
	}

	now := time.Unix(0, 0)
	step := time.Duration(r.dt * float64(time.Second))

	for i := 0; i < cfg.Cycles; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if cfg.DisturbKelvin != 0 && i == cfg.DisturbCycle {
			r.rig.Kick(cfg.DisturbKelvin)
		}

		rec.got = false
		r.loop.Step(ctx, now)
		now = now.Add(step)
		if !rec.got {
			continue
		}
		c := rec.last

		if c.Skipped {
			result.Skipped++
			continue
		}
		for _, m := range r.metrics {
			m.Observe(c)
		}
		result.Times = append(result.Times, r.dt*float64(i))
		if len(c.Temps) > 0 {
			result.Temps = append(result.Temps, c.Temps[0])
		}
		if len(c.Fractions) > 0 {
			result.Fractions = append(result.Fractions, c.Fractions[0])
		}
	}

	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}
