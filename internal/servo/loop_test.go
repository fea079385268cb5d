package servo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veloce-obs/thermoservo/internal/config"
	"github.com/veloce-obs/thermoservo/internal/logging"
)

type scriptedSensors struct {
	temps func(cycle int) float64
	fail  func(attempt int) bool
	cfg   *config.Config
	reads int
	cycle int
}

func (s *scriptedSensors) Read(ctx context.Context) ([]float64, error) {
	s.reads++
	if s.fail != nil && s.fail(s.reads) {
		return nil, errors.New("adc timeout")
	}
	s.cycle++
	v := s.cfg.Thermistor.Voltage(s.temps(s.cycle))
	return []float64{v}, nil
}

type fakeActuators struct {
	sets []float64
	err  error
}

func (f *fakeActuators) Set(channel int, fraction float64) error {
	if f.err != nil {
		return f.err
	}
	f.sets = append(f.sets, fraction)
	return nil
}

type countingRecorder struct{ rows int }

func (r *countingRecorder) Append(ts time.Time, temps []float64) error {
	r.rows++
	return nil
}

type collector struct{ cycles []Cycle }

func (c *collector) OnCycle(cy Cycle) { c.cycles = append(c.cycles, cy) }

func newTestLoop(t *testing.T, sens Sensors, acts Actuators, rec Recorder) (*Loop, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	loop, err := New(cfg, sens, acts, rec, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return loop, cfg
}

func TestLQGRespondsToColdDisturbance(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(cycle int) float64 {
		if cycle >= 10 {
			return cfg.Setpoint - 2.0 // step disturbance
		}
		return cfg.Setpoint
	}}
	acts := &fakeActuators{}
	loop, err := New(cfg, sens, acts, nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	col := &collector{}
	loop.AddObserver(col)

	if err := loop.SetMode(ModeLQG); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		loop.Step(ctx, time.Now())
	}

	fracAt := func(cycle int) float64 { return col.cycles[cycle-1].Fractions[0] }
	if got := fracAt(11); got <= fracAt(9) {
		t.Errorf("fraction at cycle 11 (%g) should exceed cycle 9 (%g) after a cold step", got, fracAt(9))
	}
	if fracAt(9) != 0 {
		t.Errorf("fraction at cycle 9 should be 0 while sitting on setpoint, got %g", fracAt(9))
	}
}

func TestSensorDoubleFailureSkipsCycle(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint - 1 }}
	acts := &fakeActuators{}
	loop, err := New(cfg, sens, acts, nil, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	col := &collector{}
	loop.AddObserver(col)
	if err := loop.SetMode(ModeLQG); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Warm up so there is a prior command and estimator state.
	for i := 0; i < 3; i++ {
		loop.Step(ctx, time.Now())
	}
	setsBefore := len(acts.sets)
	estBefore := loop.est.State()

	// Both the read and its retry fail.
	sens.fail = func(int) bool { return true }
	loop.Step(ctx, time.Now())
	sens.fail = nil

	last := col.cycles[len(col.cycles)-1]
	if !last.Skipped {
		t.Error("cycle after double failure should be marked skipped")
	}
	if len(acts.sets) != setsBefore {
		t.Errorf("no actuator command expected on a skipped cycle, got %d new", len(acts.sets)-setsBefore)
	}
	if d := estBefore.At(0, 0) - loop.est.State().At(0, 0); d != 0 {
		t.Errorf("estimator mutated on a skipped cycle by %g", d)
	}
}

func TestSensorSingleFailureRetries(t *testing.T) {
	cfg := config.DefaultConfig()
	failed := false
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint }}
	sens.fail = func(attempt int) bool {
		// Fail each cycle's first attempt only once overall.
		if !failed {
			failed = true
			return true
		}
		return false
	}
	acts := &fakeActuators{}
	loop, _ := newTestLoop(t, sens, acts, nil)
	col := &collector{}
	loop.AddObserver(col)
	if err := loop.SetMode(ModePID); err != nil {
		t.Fatal(err)
	}

	loop.Step(context.Background(), time.Now())
	if col.cycles[0].Skipped {
		t.Error("a single failure must be retried, not skipped")
	}
	if sens.reads != 2 {
		t.Errorf("expected 2 read attempts, got %d", sens.reads)
	}
}

func TestIdleHoldsLastCommand(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint + 3 }}
	acts := &fakeActuators{}
	loop, _ := newTestLoop(t, sens, acts, nil)

	if err := loop.ManualHeater(0, 0.4); err != nil {
		t.Fatal(err)
	}
	setsAfterManual := len(acts.sets)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		loop.Step(ctx, time.Now())
	}
	if len(acts.sets) != setsAfterManual {
		t.Errorf("idle cycles should not command actuators, got %d extra writes", len(acts.sets)-setsAfterManual)
	}
	if st := loop.Status(); st.Fractions[0] != 0.4 {
		t.Errorf("held fraction = %g, want 0.4", st.Fractions[0])
	}
}

func TestManualHeaterRules(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint }}
	loop, _ := newTestLoop(t, sens, &fakeActuators{}, nil)

	if err := loop.ManualHeater(0, 1.5); err == nil {
		t.Error("fraction above 1 must be rejected")
	}
	if err := loop.ManualHeater(5, 0.5); err == nil {
		t.Error("out-of-range channel must be rejected")
	}
	if err := loop.SetMode(ModePID); err != nil {
		t.Fatal(err)
	}
	if err := loop.ManualHeater(0, 0.5); !errors.Is(err, ErrNotIdle) {
		t.Errorf("expected ErrNotIdle outside idle mode, got %v", err)
	}
}

func TestRecordingStopsAtLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RecordLimit = 5
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint }}
	rec := &countingRecorder{}
	loop, err := New(cfg, sens, &fakeActuators{}, rec, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}

	loop.SetRecording(true)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		loop.Step(ctx, time.Now())
	}
	if rec.rows != 5 {
		t.Errorf("recorded %d rows, want 5", rec.rows)
	}
	if loop.Status().Recording {
		t.Error("recording should stop at the limit")
	}
}

func TestPIDModeDrivesTowardSetpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint - 0.004 }}
	acts := &fakeActuators{}
	loop, _ := newTestLoop(t, sens, acts, nil)
	if err := loop.SetMode(ModePID); err != nil {
		t.Fatal(err)
	}

	loop.Step(context.Background(), time.Now())
	if len(acts.sets) != 1 {
		t.Fatalf("expected one actuator write, got %d", len(acts.sets))
	}
	if acts.sets[0] <= cfg.PID.Bias {
		t.Errorf("cold plate should push drive above bias, got %g", acts.sets[0])
	}
}

func TestModeSwitchResetsLawState(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return cfg.Setpoint - 1 }}
	loop, _ := newTestLoop(t, sens, &fakeActuators{}, nil)
	ctx := context.Background()

	if err := loop.SetMode(ModeLQG); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		loop.Step(ctx, time.Now())
	}
	if loop.est.State().At(1, 0) == 0 {
		t.Fatal("estimator should have moved off baseline")
	}

	// Leave and re-enter: the estimate restarts from zero deviation.
	if err := loop.SetMode(ModeIdle); err != nil {
		t.Fatal(err)
	}
	if err := loop.SetMode(ModeLQG); err != nil {
		t.Fatal(err)
	}
	if got := loop.est.State().At(1, 0); got != 0 {
		t.Errorf("estimator state after re-entry = %g, want 0", got)
	}
}

func TestSetpointAndStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	sens := &scriptedSensors{cfg: cfg, temps: func(int) float64 { return 24.0 }}
	loop, _ := newTestLoop(t, sens, &fakeActuators{}, nil)

	loop.SetSetpoint(26.5)
	if got := loop.Setpoint(); got != 26.5 {
		t.Errorf("setpoint = %g, want 26.5", got)
	}

	loop.Step(context.Background(), time.Now())
	st := loop.Status()
	if st.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", st.Cycles)
	}
	if len(st.Temps) != 1 {
		t.Fatalf("expected 1 temperature, got %d", len(st.Temps))
	}
	if d := st.Temps[0] - 24.0; d > 1e-6 || d < -1e-6 {
		t.Errorf("round-tripped temperature = %g, want 24", st.Temps[0])
	}
}
