package tune

import (
	"context"
	"errors"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/metrics"
	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
	"github.com/veloce-obs/thermoservo/internal/sim"
)

var ErrNoResult = errors.New("no parameter combination produced a result")

// PIDOptions bound the search grid and the scoring run.
type PIDOptions struct {
	GainLo, GainHi         float64
	IntegralLo, IntegralHi float64
	Points                 int
	Cycles                 int
	Ambient                float64
	Seed                   int64
}

func DefaultPIDOptions() PIDOptions {
	return PIDOptions{
		GainLo: 5, GainHi: 50,
		IntegralLo: 0.0, IntegralHi: 0.5,
		Points:  6,
		Cycles:  600,
		Ambient: 24.0,
		Seed:    1,
	}
}

// PID runs a grid search over proportional and integral gains, scoring each
// pair by tracking RMS on a fresh simulated rig.
func PID(ctx context.Context, base *config.Config, opts PIDOptions) (config.PIDConfig, float64, error) {
	search := NewGridSearch(
		[]string{"gain", "integral_gain"},
		[][]float64{
			Span(opts.GainLo, opts.GainHi, opts.Points),
			Span(opts.IntegralLo, opts.IntegralHi, opts.Points),
		},
	)

	obj := func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := *base
		cfg.PID.Gain = params["gain"]
		cfg.PID.IntegralGain = params["integral_gain"]

		r := rig.New(&cfg, rig.Options{Ambient: opts.Ambient, Seed: opts.Seed})
		loop, err := servo.New(&cfg, r, r, nil, logging.Discard())
		if err != nil {
			return 0, err
		}
		runner := sim.New(loop, r, cfg.Dt)
		track := metrics.NewTrackingError()
		runner.AddMetric(track)

		res, err := runner.Run(ctx, sim.Config{Cycles: opts.Cycles, Mode: servo.ModePID})
		if err != nil {
			return 0, err
		}
		return res.Metrics[track.Name()], nil
	}

	params, score, err := search.Search(ctx, obj)
	if err != nil {
		return config.PIDConfig{}, 0, err
	}
	return config.PIDConfig{
		Gain:         params["gain"],
		IntegralGain: params["integral_gain"],
		Bias:         base.PID.Bias,
	}, score, nil
}
