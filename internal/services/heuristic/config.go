package heuristic

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/benvon/checkin-insights/internal/models"
)

//go:embed heuristics.yaml
var defaultConfig []byte

// weightTolerance bounds how far a weight set may drift from 1.0
const weightTolerance = 1e-6

// Mood state class names
const (
	ClassDepressed = "depressed"
	ClassStable    = "stable"
	ClassElevated  = "elevated"
)

// moodClasses is the fixed class order used for tie-breaking
var moodClasses = []string{ClassDepressed, ClassStable, ClassElevated}

// Config is the clinical heuristic configuration document
type Config struct {
	Version string                 `yaml:"version"`
	Types   map[string]*TypeConfig `yaml:"types"`
}

// TypeConfig configures one prediction type
type TypeConfig struct {
	BaseRate   float64                 `yaml:"base_rate"`
	Thresholds Thresholds              `yaml:"thresholds,omitempty"`
	Weights    map[string]float64      `yaml:"weights,omitempty"`
	Classes    map[string]*ClassConfig `yaml:"classes,omitempty"`
}

// Thresholds are the probability cut-offs for risk labels
type Thresholds struct {
	Moderate float64 `yaml:"moderate"`
	High     float64 `yaml:"high"`
}

// ClassConfig configures one mood_state class
type ClassConfig struct {
	BaseRate float64            `yaml:"base_rate"`
	Weights  map[string]float64 `yaml:"weights"`
}

// LoadConfig reads the configuration at path, or the embedded default when path is empty
func LoadConfig(path string) (*Config, error) {
	data := defaultConfig
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read heuristic config %s: %w", path, err)
		}
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a configuration document
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse heuristic config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every prediction type is configured and every weight set is well formed
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("heuristic config: version is required")
	}
	for _, t := range models.AllPredictionTypes() {
		tc, ok := c.Types[string(t)]
		if !ok || tc == nil {
			return fmt.Errorf("heuristic config: missing type %s", t)
		}
		if t.MultiClass() {
			if err := validateClasses(t, tc); err != nil {
				return err
			}
			continue
		}
		if tc.BaseRate < 0 || tc.BaseRate > 1 {
			return fmt.Errorf("heuristic config: %s base_rate %v outside [0,1]", t, tc.BaseRate)
		}
		if tc.Thresholds.Moderate <= 0 || tc.Thresholds.Moderate >= tc.Thresholds.High || tc.Thresholds.High > 1 {
			return fmt.Errorf("heuristic config: %s thresholds must satisfy 0 < moderate < high <= 1", t)
		}
		if err := validateWeights(string(t), tc.Weights); err != nil {
			return err
		}
	}
	for name := range c.Types {
		if !models.PredictionType(name).Valid() {
			return fmt.Errorf("heuristic config: unknown type %s", name)
		}
	}
	return nil
}

func validateClasses(t models.PredictionType, tc *TypeConfig) error {
	for _, class := range moodClasses {
		cc, ok := tc.Classes[class]
		if !ok || cc == nil {
			return fmt.Errorf("heuristic config: %s missing class %s", t, class)
		}
		if cc.BaseRate < 0 || cc.BaseRate > 1 {
			return fmt.Errorf("heuristic config: %s/%s base_rate %v outside [0,1]", t, class, cc.BaseRate)
		}
		if class == ClassStable {
			if len(cc.Weights) > 0 {
				return fmt.Errorf("heuristic config: %s/%s is derived and takes no weights", t, class)
			}
			continue
		}
		if err := validateWeights(fmt.Sprintf("%s/%s", t, class), cc.Weights); err != nil {
			return err
		}
	}
	if len(tc.Classes) != len(moodClasses) {
		return fmt.Errorf("heuristic config: %s has unknown classes", t)
	}
	return nil
}

func validateWeights(owner string, weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("heuristic config: %s has no weights", owner)
	}
	sum := 0.0
	for _, name := range sortedKeys(weights) {
		w := weights[name]
		if _, ok := factorFuncs[name]; !ok {
			return fmt.Errorf("heuristic config: %s uses unknown factor %s", owner, name)
		}
		if w < 0 {
			return fmt.Errorf("heuristic config: %s factor %s has negative weight", owner, name)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("heuristic config: %s weights sum to %.6f, want 1.0", owner, sum)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
