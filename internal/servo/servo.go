// Package servo runs the temperature control loop: once per period it takes
// a measurement, advances the selected control law, and commands the
// heaters. Mode, setpoint, and recording flags are owned here and changed
// through the command interface; one mutex serializes the command path and
// the cycle loop.
package servo

import (
	"context"
	"time"
)

// Mode selects which control law runs. Exactly one is active at a time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeLQG
	ModePID
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeLQG:
		return "lqg"
	case ModePID:
		return "pid"
	default:
		return "unknown"
	}
}

// Sensors reads one raw voltage per configured analog input. A failed read
// is retried once by the loop; implementations should honor the context
// deadline rather than block.
type Sensors interface {
	Read(ctx context.Context) ([]float64, error)
}

// Actuators commands a heater channel's drive fraction in [0,1].
type Actuators interface {
	Set(channel int, fraction float64) error
}

// Recorder receives the converted temperatures of recorded cycles.
type Recorder interface {
	Append(ts time.Time, temps []float64) error
}

// Cycle is the read-only snapshot handed to observers after each cycle.
type Cycle struct {
	Time      time.Time
	Index     uint64
	Mode      Mode
	Setpoint  float64
	Volts     []float64
	Temps     []float64
	Fractions []float64

	// LQG internals, zero in other modes.
	RawWatts   float64
	EstAmbient float64
	EstPlate   float64

	// Skipped marks a cycle abandoned after repeated sensor failures;
	// no state was mutated and no command was emitted.
	Skipped bool
}

// Observer is notified after every cycle. Used by the live view and the
// run metrics; callbacks run on the loop goroutine and must be quick.
type Observer interface {
	OnCycle(c Cycle)
}

// Status is the command interface's view of the loop.
type Status struct {
	Mode      Mode
	Setpoint  float64
	Cycles    uint64
	Recording bool
	Recorded  int
	Volts     []float64
	Temps     []float64
	Fractions []float64
}
