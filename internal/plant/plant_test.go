package plant

import (
	"errors"
	"math"
	"testing"
)

func TestDeriveDimensions(t *testing.T) {
	m, err := Derive(DefaultParameters(), 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Order() != 2 {
		t.Errorf("expected order 2, got %d", m.Order())
	}
	if m.Outputs() != 1 {
		t.Errorf("expected 1 output, got %d", m.Outputs())
	}
	checks := []struct {
		name string
		r, c int
		m    interface{ Dims() (int, int) }
	}{
		{"A", 2, 2, m.A},
		{"B", 2, 1, m.B},
		{"C", 1, 2, m.C},
		{"V", 2, 2, m.V},
		{"W", 1, 1, m.W},
		{"Q", 2, 2, m.Q},
		{"R", 1, 1, m.R},
	}
	for _, c := range checks {
		r, cc := c.m.Dims()
		if r != c.r || cc != c.c {
			t.Errorf("%s: expected %dx%d, got %dx%d", c.name, c.r, c.c, r, cc)
		}
	}
}

func TestDeriveDiscretization(t *testing.T) {
	p := DefaultParameters()
	dt := 1.0
	m, err := Derive(p, dt)
	if err != nil {
		t.Fatal(err)
	}

	// A = I + dt*Ac, so the ambient diagonal is 1 - dt/tau.
	want := 1 - dt/p.AmbientDampTime
	if got := m.A.At(0, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("A[0,0] = %g, want %g", got, want)
	}
	if got := m.A.At(0, 1); got != 0 {
		t.Errorf("A[0,1] = %g, want 0", got)
	}

	// B carries the dt scaling.
	wantB := dt * p.GHeaterPlate / (p.GHeaterPlate + p.GAmbientHeater) / p.PlateCapacitance
	if got := m.B.At(1, 0); math.Abs(got-wantB) > 1e-15 {
		t.Errorf("B[1,0] = %g, want %g", got, wantB)
	}

	// Observation weights sum to 1.
	if s := m.C.At(0, 0) + m.C.At(0, 1); math.Abs(s-1) > 1e-12 {
		t.Errorf("C row sums to %g, want 1", s)
	}
}

func TestDeriveInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Parameters)
		dt     float64
	}{
		{"zero dt", func(*Parameters) {}, 0},
		{"negative dt", func(*Parameters) {}, -1},
		{"zero capacitance", func(p *Parameters) { p.PlateCapacitance = 0 }, 1},
		{"negative conductance", func(p *Parameters) { p.GPlateSensor = -2 }, 1},
		{"zero damp time", func(p *Parameters) { p.AmbientDampTime = 0 }, 1},
		{"negative process noise", func(p *Parameters) { p.ProcessNoise = -0.1 }, 1},
		{"zero heater max", func(p *Parameters) { p.HeaterMax = 0 }, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := DefaultParameters()
			c.mutate(&p)
			if _, err := Derive(p, c.dt); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestThermistorRoundTrip(t *testing.T) {
	th := DefaultThermistor()
	for _, temp := range []float64{5, 15, 25, 35, 45} {
		// The bridge is differential, so readings above the balance
		// temperature come out negative.
		v := th.Voltage(temp)
		if v <= -th.SupplyVolts || v >= th.SupplyVolts {
			t.Fatalf("voltage at %g C out of bridge range: %g", temp, v)
		}
		back := th.Temperature(v)
		if math.Abs(back-temp) > 1e-9 {
			t.Errorf("round trip at %g C: got %g", temp, back)
		}
	}
}

func TestThermistorMonotonic(t *testing.T) {
	// NTC: hotter sensor, lower resistance, lower bridge voltage.
	th := DefaultThermistor()
	prev := th.Voltage(0)
	for temp := 5.0; temp <= 50; temp += 5 {
		v := th.Voltage(temp)
		if v >= prev {
			t.Errorf("voltage not decreasing at %g C: %g >= %g", temp, v, prev)
		}
		prev = v
	}
}
