package rig_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/rig"
	"github.com/veloce-obs/thermoservo/internal/servo"
)

func TestEquilibriumWithHeaterOff(t *testing.T) {
	cfg := config.DefaultConfig()
	r := rig.New(cfg, rig.Options{Ambient: 24.0, Seed: 1, Noiseless: true})

	ctx := context.Background()
	var volts []float64
	var err error
	for i := 0; i < 50; i++ {
		volts, err = r.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	got := cfg.Thermistor.Temperature(volts[0])
	if math.Abs(got-24.0) > 1e-6 {
		t.Fatalf("plant drifted with heater off: %.6f C", got)
	}
}

func TestFullPowerHeatsThePlate(t *testing.T) {
	cfg := config.DefaultConfig()
	r := rig.New(cfg, rig.Options{Ambient: 24.0, Seed: 1, Noiseless: true})

	if err := r.Set(0, 1.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		if _, err := r.Read(ctx); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	// Steady plate offset is roughly half the heater power in kelvin for
	// the default conductances.
	got := r.PlateTemperature(0)
	want := 24.0 + cfg.Plant.HeaterMax*cfg.Plant.GHeaterPlate/(cfg.Plant.GHeaterPlate+cfg.Plant.GAmbientHeater)/2.0
	if math.Abs(got-want) > 0.2 {
		t.Fatalf("steady plate temp = %.3f C, want about %.3f C", got, want)
	}
}

func TestRK4MatchesEulerAtSmallStep(t *testing.T) {
	cfg := config.DefaultConfig()
	p := &rig.ThermalPlant{Params: cfg.Plant}

	xe := []float64{0.5, -0.2}
	xr := []float64{0.5, -0.2}
	var euler rig.Euler
	var rk4 rig.RK4
	for i := 0; i < 1000; i++ {
		xe = euler.Step(p, xe, 1.5, 0.01)
		xr = rk4.Step(p, xr, 1.5, 0.01)
	}
	for i := range xe {
		if math.Abs(xe[i]-xr[i]) > 1e-4 {
			t.Fatalf("state %d diverged: euler %.8f rk4 %.8f", i, xe[i], xr[i])
		}
	}
}

func TestKickAndFailReads(t *testing.T) {
	cfg := config.DefaultConfig()
	r := rig.New(cfg, rig.Options{Ambient: 24.0, Seed: 1, Noiseless: true})
	ctx := context.Background()

	r.FailReads(2)
	if _, err := r.Read(ctx); err == nil {
		t.Fatal("expected first injected fault")
	}
	if _, err := r.Read(ctx); err == nil {
		t.Fatal("expected second injected fault")
	}
	if _, err := r.Read(ctx); err != nil {
		t.Fatalf("faults should be exhausted: %v", err)
	}

	before := r.PlateTemperature(0)
	r.Kick(-3.0)
	for i := 0; i < 10; i++ {
		if _, err := r.Read(ctx); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if r.PlateTemperature(0) >= before {
		t.Fatal("plate should cool after a negative ambient kick")
	}
}

func closedLoop(t *testing.T, mode servo.Mode, cycles int) (*servo.Loop, *rig.Rig, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	r := rig.New(cfg, rig.Options{Ambient: 24.0, Seed: 7})
	loop, err := servo.New(cfg, r, r, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	if err := loop.SetMode(mode); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	now := time.Unix(0, 0)
	dt := time.Duration(cfg.Dt * float64(time.Second))
	for i := 0; i < cycles; i++ {
		loop.Step(context.Background(), now)
		now = now.Add(dt)
	}
	return loop, r, cfg
}

func TestLQGClosedLoopTracksSetpoint(t *testing.T) {
	_, r, cfg := closedLoop(t, servo.ModeLQG, 400)
	got := r.PlateTemperature(0)
	if math.Abs(got-cfg.Setpoint) > 0.5 {
		t.Fatalf("plate settled at %.3f C, setpoint %.3f C", got, cfg.Setpoint)
	}
}

func TestPIDClosedLoopTracksSetpoint(t *testing.T) {
	_, r, cfg := closedLoop(t, servo.ModePID, 800)
	got := r.PlateTemperature(0)
	if math.Abs(got-cfg.Setpoint) > 0.5 {
		t.Fatalf("plate settled at %.3f C, setpoint %.3f C", got, cfg.Setpoint)
	}
}
