package config

// Presets are named starting points for known enclosure setups. "bench" is
// the open-air test stand; "vacuum" approximates the instrument chamber,
// where the sensor-ambient coupling is mostly radiative and much weaker.
var Presets = map[string]*Config{
	"bench": DefaultConfig(),
	"vacuum": func() *Config {
		c := DefaultConfig()
		c.Plant.GSensorAmbient = 0.05
		c.Plant.GAmbientHeater = 0.05
		c.Plant.AmbientDampTime = 5000
		c.Plant.ProcessNoise = 0.002
		return c
	}(),
}

// GetPreset returns a copy of a named preset, or nil when unknown.
func GetPreset(name string) *Config {
	base, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *base
	return &c
}

// ListPresets returns the known preset names.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
