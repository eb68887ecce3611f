package config

import (
	"fmt"

	"github.com/giovannifil-64/DeVisu/internal/matcher"
)

// Matcher returns the operating point for comparisons. A profile written by
// the calibration harness takes precedence over the MATCH_* variables.
func (c *Config) Matcher() (matcher.Config, error) {
	if c.MatchProfile != "" {
		p, err := matcher.LoadProfile(c.MatchProfile)
		if err != nil {
			return matcher.Config{}, err
		}
		return p.Matcher, nil
	}

	m := matcher.Config{
		Metric:    matcher.Metric(c.MatchMetric),
		Threshold: c.MatchThreshold,
		Tolerance: c.MatchTolerance,
		Version:   "env",
	}
	if err := m.Validate(); err != nil {
		return matcher.Config{}, fmt.Errorf("matcher config: %w", err)
	}
	return m, nil
}
