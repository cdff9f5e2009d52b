package smt

import (
	"encoding/json"
	"math"
	"strings"
)

// ImpactKey starts the key of a package's impact in an [Assignment] or a
// [Config].
const ImpactKey = "impact_"

// Assignment is a solver model reduced to the user-facing values: the
// serial of every present package, every impact and the objective.
type Assignment struct {
	Serials  map[string]int
	Impacts  map[string]float64
	FileRisk float64
}

// Sanitize reduces a model. Absent packages (-1) are dropped, reals are
// rounded to two decimals and solver helper constants are skipped.
func Sanitize(m *Model, values map[string]Value) Assignment {
	a := Assignment{Serials: map[string]int{}, Impacts: map[string]float64{}}
	for name, v := range values {
		switch {
		case name == "/0" || name == "func_obj":
		case name == m.Objective:
			a.FileRisk = round2(v.Real)
		case v.Sort == SortInt:
			if m.HasPackage(name) && v.Int >= 0 {
				a.Serials[name] = int(v.Int)
			}
		case v.Sort == SortReal:
			if p, ok := strings.CutPrefix(name, ImpactPrefix); ok {
				a.Impacts[ImpactKey+p] = round2(v.Real)
			}
		}
	}
	return a
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// Config is one configuration with version names resolved.
type Config struct {
	Versions map[string]string
	Impacts  map[string]float64
	FileRisk float64
}

// MarshalJSON flattens c into {package: version, impact_package: score,
// file_risk: risk}.
func (c Config) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(c.Versions)+len(c.Impacts)+1)
	for k, v := range c.Impacts {
		flat[k] = v
	}
	for k, v := range c.Versions {
		flat[k] = v
	}
	flat["file_risk"] = c.FileRisk
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON: string values are versions and
// numbers are impacts.
func (c *Config) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*c = Config{Versions: map[string]string{}, Impacts: map[string]float64{}}
	for k, v := range flat {
		switch x := v.(type) {
		case string:
			c.Versions[k] = x
		case float64:
			if k == "file_risk" {
				c.FileRisk = x
				continue
			}
			c.Impacts[k] = x
		}
	}
	return nil
}
