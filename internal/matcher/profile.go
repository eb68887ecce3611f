package matcher

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProfileVersion is the schema version written by SaveProfile.
const ProfileVersion = 1

// Profile is the versioned operating point selected by the calibration harness.
type Profile struct {
	SchemaVersion int          `yaml:"schema_version"`
	Matcher       Config       `yaml:"matcher"`
	Calibration   *Calibration `yaml:"calibration,omitempty"`
}

// Calibration records where the operating point came from.
type Calibration struct {
	Dataset     string        `yaml:"dataset"`
	GeneratedAt time.Time     `yaml:"generated_at"`
	Accuracy    float64       `yaml:"accuracy"`
	Grid        []GridOutcome `yaml:"grid,omitempty"`
}

// GridOutcome is one evaluated operating point.
type GridOutcome struct {
	Value    float64 `yaml:"value"`
	Accuracy float64 `yaml:"accuracy"`
	TP       int     `yaml:"tp"`
	FP       int     `yaml:"fp"`
	TN       int     `yaml:"tn"`
	FN       int     `yaml:"fn"`
	Failed   int     `yaml:"failed"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.SchemaVersion != ProfileVersion {
		return nil, fmt.Errorf("profile %s: unsupported schema_version %d", path, p.SchemaVersion)
	}
	if p.Matcher.Tolerance == 0 && p.Matcher.Metric == MetricCosine {
		p.Matcher.Tolerance = DefaultTolerance
	}
	if err := p.Matcher.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes p as YAML, stamping the schema version.
func SaveProfile(path string, p *Profile) error {
	if err := p.Matcher.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid profile: %w", err)
	}
	p.SchemaVersion = ProfileVersion

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
