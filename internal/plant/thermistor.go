package plant

import (
	"fmt"
	"math"
)

// Thermistor converts the raw bridge voltage of an NTC thermistor to a
// temperature using the Steinhart-Hart ln-cubic model:
//
//	1/T = a + b·ln(R) + c·ln(R)³
//
// with R recovered from the voltage divider the sensor sits in.
type Thermistor struct {
	// Steinhart-Hart coefficients.
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`

	// Divider reference resistance, ohms.
	RefResistance float64 `yaml:"ref_resistance"`

	// Bridge supply voltage.
	SupplyVolts float64 `yaml:"supply_volts"`
}

// DefaultThermistor returns the coefficients of the installed sensor.
func DefaultThermistor() Thermistor {
	return Thermistor{
		A:             0.00113259149597421,
		B:             0.000233514798680064,
		C:             0.00000009045521729374,
		RefResistance: 10000,
		SupplyVolts:   5,
	}
}

func (th Thermistor) Validate() error {
	if th.RefResistance <= 0 || th.SupplyVolts <= 0 {
		return fmt.Errorf("%w: thermistor reference resistance and supply must be positive", ErrInvalidParameter)
	}
	if th.B <= 0 || th.C <= 0 {
		return fmt.Errorf("%w: thermistor b and c coefficients must be positive", ErrInvalidParameter)
	}
	return nil
}

// Resistance converts a bridge voltage to the thermistor resistance.
func (th Thermistor) Resistance(volts float64) float64 {
	r := th.RefResistance
	return (2*r*volts)/(th.SupplyVolts-volts) + r
}

// Temperature converts a bridge voltage to degrees Celsius.
func (th Thermistor) Temperature(volts float64) float64 {
	lnR := math.Log(th.Resistance(volts))
	invT := th.A + th.B*lnR + th.C*lnR*lnR*lnR
	return 1/invT - 273.15
}

// Voltage is the inverse transfer: the bridge voltage expected at a given
// temperature. The ln-cubic is inverted in closed form; with b, c > 0 the
// depressed cubic has exactly one real root, so Cardano applies directly.
func (th Thermistor) Voltage(tempC float64) float64 {
	invT := 1 / (tempC + 273.15)

	// Solve c·x³ + b·x + (a - 1/T) = 0 for x = ln(R).
	p := th.B / th.C
	q := (th.A - invT) / th.C
	d := math.Sqrt(q*q/4 + p*p*p/27)
	lnR := math.Cbrt(-q/2+d) + math.Cbrt(-q/2-d)
	res := math.Exp(lnR)

	// Invert the divider: res = 2·Rr·V/(Vs-V) + Rr.
	return th.SupplyVolts * (res - th.RefResistance) / (res + th.RefResistance)
}
