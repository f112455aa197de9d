package models

import "time"

// FeatureStats holds the fitted imputation and scaling parameters of one feature.
type FeatureStats struct {
	Name       string  `yaml:"name"`
	ScaledName string  `yaml:"scaled_name"`
	Mean       float64 `yaml:"mean"`
	Std        float64 `yaml:"std"`
	Imputed    int     `yaml:"imputed"`
	Degenerate bool    `yaml:"degenerate,omitempty"`
}

// FeatureManifest records how the ML-ready table was produced so the same
// transformation can be applied to records outside the batch.
type FeatureManifest struct {
	RunID              string         `yaml:"run_id"`
	GeneratedAt        time.Time      `yaml:"generated_at"`
	Table              string         `yaml:"table"`
	Rows               int            `yaml:"rows"`
	ZeroVariancePolicy string         `yaml:"zero_variance_policy"`
	Categories         []string       `yaml:"categories"`
	Features           []FeatureStats `yaml:"features"`
}

// Feature returns the stats for a feature by name.
func (m *FeatureManifest) Feature(name string) (FeatureStats, bool) {
	for _, f := range m.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureStats{}, false
}
