package rollup

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weight standardizes one platform's raw counters into
// impression-equivalent units.
type Weight struct {
	Views       float64 `yaml:"views"`
	Engagements float64 `yaml:"engagements"`
}

// OverlapRule declares what fraction of the smaller platform audience in a
// pair is assumed to also be in the larger one.
type OverlapRule struct {
	Platforms []string `yaml:"platforms"`
	Percent   float64  `yaml:"percent"`
}

// Config is the standardization table: per-platform weight factors and
// pairwise audience-overlap percentages. Platforms absent from the table
// weigh 1.0.
type Config struct {
	Platforms map[string]Weight `yaml:"platforms"`
	Overlaps  []OverlapRule     `yaml:"overlaps"`

	overlapIndex map[string]float64
}

// DefaultConfig is the built-in table used when no ROLLUP_CONFIG_FILE is
// configured. The factors are deliberately coarse; operators tune them per
// deployment.
func DefaultConfig() *Config {
	cfg := &Config{
		Platforms: map[string]Weight{
			"youtube":   {Views: 1.0, Engagements: 1.0},
			"tiktok":    {Views: 1.2, Engagements: 0.8},
			"instagram": {Views: 1.1, Engagements: 0.9},
			"twitch":    {Views: 0.9, Engagements: 1.1},
			"x":         {Views: 1.0, Engagements: 0.7},
			"facebook":  {Views: 1.0, Engagements: 0.8},
		},
		Overlaps: []OverlapRule{
			{Platforms: []string{"youtube", "tiktok"}, Percent: 0.25},
			{Platforms: []string{"youtube", "instagram"}, Percent: 0.20},
			{Platforms: []string{"tiktok", "instagram"}, Percent: 0.35},
			{Platforms: []string{"youtube", "twitch"}, Percent: 0.30},
		},
	}
	cfg.buildIndex()
	return cfg
}

// LoadConfig reads the standardization table from a YAML file, falling back
// to the built-in defaults when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rollup config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rollup config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid rollup config: %w", err)
	}
	cfg.buildIndex()
	return &cfg, nil
}

func (c *Config) validate() error {
	for platform, w := range c.Platforms {
		if w.Views <= 0 || w.Engagements <= 0 {
			return fmt.Errorf("platform %q: weights must be positive", platform)
		}
	}
	for _, rule := range c.Overlaps {
		if len(rule.Platforms) != 2 || rule.Platforms[0] == rule.Platforms[1] {
			return fmt.Errorf("overlap rule %v: exactly two distinct platforms required", rule.Platforms)
		}
		if rule.Percent < 0 || rule.Percent > 1 {
			return fmt.Errorf("overlap rule %v: percent must be within [0,1]", rule.Platforms)
		}
	}
	return nil
}

func pairKey(p, q string) string {
	if p > q {
		p, q = q, p
	}
	return p + "|" + q
}

func (c *Config) buildIndex() {
	c.overlapIndex = make(map[string]float64, len(c.Overlaps))
	for _, rule := range c.Overlaps {
		c.overlapIndex[pairKey(rule.Platforms[0], rule.Platforms[1])] = rule.Percent
	}
}

// Factor returns the weight for a platform, defaulting to 1.0 for
// platforms the table does not know.
func (c *Config) Factor(platform string) Weight {
	if w, ok := c.Platforms[platform]; ok {
		return w
	}
	return Weight{Views: 1.0, Engagements: 1.0}
}

// OverlapPercent returns the configured overlap fraction for a platform
// pair, 0 when the pair is unconfigured. Symmetric in its arguments.
func (c *Config) OverlapPercent(p, q string) float64 {
	return c.overlapIndex[pairKey(p, q)]
}

