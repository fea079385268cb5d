package sim_test

import (
	"context"
	"testing"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/metrics"
	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
	"github.com/veloce-obs/thermoservo/internal/sim"
)

func newRunner(t *testing.T) (*sim.Runner, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	r := rig.New(cfg, rig.Options{Ambient: 24.0, Seed: 3})
	loop, err := servo.New(cfg, r, r, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return sim.New(loop, r, cfg.Dt), cfg
}

func TestRunCollectsTrajectoryAndMetrics(t *testing.T) {
	runner, _ := newRunner(t)
	runner.AddMetric(metrics.NewTrackingError())
	runner.AddMetric(metrics.NewHeaterDuty())

	res, err := runner.Run(context.Background(), sim.Config{Cycles: 200, Mode: servo.ModeLQG})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Times) != 200 || len(res.Temps) != 200 || len(res.Fractions) != 200 {
		t.Fatalf("trajectory lengths = %d/%d/%d, want 200", len(res.Times), len(res.Temps), len(res.Fractions))
	}
	if _, ok := res.Metrics["tracking_rms_k"]; !ok {
		t.Fatal("missing tracking metric")
	}
	if res.Metrics["heater_duty"] <= 0 {
		t.Fatal("heating toward a setpoint above ambient should use the heater")
	}
}

func TestRunRejectsBadCycleCount(t *testing.T) {
	runner, _ := newRunner(t)
	if _, err := runner.Run(context.Background(), sim.Config{Cycles: 0, Mode: servo.ModeLQG}); err == nil {
		t.Fatal("expected error for zero cycles")
	}
}

func TestDisturbanceRaisesDrive(t *testing.T) {
	runner, _ := newRunner(t)
	runner.AddMetric(metrics.NewHeaterDuty())

	res, err := runner.Run(context.Background(), sim.Config{
		Cycles:        300,
		Mode:          servo.ModeLQG,
		DisturbCycle:  150,
		DisturbKelvin: -3.0,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// The ambient drop should show up as a dip in sensed temperature
	// shortly after the kick.
	if res.Temps[155] >= res.Temps[149] {
		t.Fatalf("expected a temperature dip after the disturbance: before %.3f after %.3f",
			res.Temps[149], res.Temps[155])
	}
}

func TestRunHonorsContext(t *testing.T) {
	runner, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx, sim.Config{Cycles: 50, Mode: servo.ModeIdle}); err == nil {
		t.Fatal("expected context error")
	}
}
