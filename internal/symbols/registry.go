package symbols

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Spec maps one alert symbol to its broker instrument and default order size.
type Spec struct {
	Symbol string  `yaml:"symbol"`
	Epic   string  `yaml:"epic"`
	Size   float64 `yaml:"size"`
}

// Registry is the static symbol table, loaded once at startup and read-only
// after that.
type Registry struct {
	specs map[string]Spec
}

// Built-in table, used when no symbols file is configured.
var defaults = []Spec{
	{Symbol: "BTCUSD", Epic: "BTCUSD", Size: 0.005},
	{Symbol: "GOLD", Epic: "GOLD", Size: 0.5},
	{Symbol: "SILVER", Epic: "SILVER", Size: 55},
	{Symbol: "COPPER", Epic: "COPPER", Size: 450},
	{Symbol: "OIL_CRUDE", Epic: "OIL_CRUDE", Size: 30},
	{Symbol: "EU50", Epic: "EU50", Size: 0.3},
	{Symbol: "UK100", Epic: "UK100", Size: 0.2},
	{Symbol: "EURUSD", Epic: "EURUSD", Size: 2000},
	{Symbol: "LRC", Epic: "LRC", Size: 0.5},
	{Symbol: "ETHUSD", Epic: "ETHUSD", Size: 0.6},
}

// Load builds the registry from a yaml file of specs, or from the built-in
// table when path is empty.
func Load(path string) (*Registry, error) {
	specs := defaults
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read symbols file %s: %w", path, err)
		}
		var fileSpecs []Spec
		if err := yaml.Unmarshal(b, &fileSpecs); err != nil {
			return nil, fmt.Errorf("decode symbols file %s: %w", path, err)
		}
		if len(fileSpecs) == 0 {
			return nil, fmt.Errorf("symbols file %s is empty", path)
		}
		specs = fileSpecs
	}

	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if s.Symbol == "" || s.Epic == "" || s.Size <= 0 {
			return nil, fmt.Errorf("invalid symbol spec: %+v", s)
		}
		m[s.Symbol] = s
	}
	return &Registry{specs: m}, nil
}

// Lookup resolves an alert symbol. The bool reports whether it is known.
func (r *Registry) Lookup(symbol string) (Spec, bool) {
	s, ok := r.specs[symbol]
	return s, ok
}

// Epics lists the broker instruments of every registered symbol.
func (r *Registry) Epics() []string {
	out := make([]string, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s.Epic)
	}
	return out
}
