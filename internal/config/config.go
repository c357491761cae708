package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/inquest/internal/conflict"
)

// Duration wraps time.Duration so YAML configs can use "90s" style values.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// TaskSpec configures one investigation task within a phase.
type TaskSpec struct {
	Name    string   `yaml:"name"`
	Agent   string   `yaml:"agent"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries int      `yaml:"retries,omitempty"`
}

// PhaseSpec configures one phase of the plan.
type PhaseSpec struct {
	Name      string     `yaml:"name"`
	DependsOn []string   `yaml:"dependsOn,omitempty"`
	Tasks     []TaskSpec `yaml:"tasks"`
}

// Config holds session-level settings loaded from inquest.yml.
type Config struct {
	Phases          []PhaseSpec     `yaml:"phases"`
	Resolution      conflict.Config `yaml:"resolution,omitempty"`
	LeaseTTL        Duration        `yaml:"leaseTTL,omitempty"`
	TaskTimeout     Duration        `yaml:"taskTimeout,omitempty"`
	Workers         int             `yaml:"workers,omitempty"`
	RedisURL        string          `yaml:"redisURL,omitempty"`
	LedgerPath      string          `yaml:"ledgerPath,omitempty"`
	MinimumEvidence int             `yaml:"minimumEvidence,omitempty"`
}

// Defaults applied by Load when the config leaves a field unset.
const (
	DefaultLeaseTTL        = 30 * time.Second
	DefaultTaskTimeout     = 90 * time.Second
	DefaultWorkers         = 4
	DefaultMinimumEvidence = 1
)

// Load attempts to read inquest.yml or inquest.yaml from the given
// directory. Returns a zero-value config with defaults (not an error) if no
// config file exists.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"inquest.yml", "inquest.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		cfg.applyDefaults()
		return &cfg, nil
	}
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LeaseTTL.Duration <= 0 {
		c.LeaseTTL.Duration = DefaultLeaseTTL
	}
	if c.TaskTimeout.Duration <= 0 {
		c.TaskTimeout.Duration = DefaultTaskTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MinimumEvidence <= 0 {
		c.MinimumEvidence = DefaultMinimumEvidence
	}
}

// Validate checks the phase plan for structural errors: empty plans, unknown
// or cyclic dependencies, and tasks without an agent kind.
func (c *Config) Validate() error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("config: no phases defined")
	}
	byName := make(map[string]*PhaseSpec, len(c.Phases))
	for i := range c.Phases {
		p := &c.Phases[i]
		if p.Name == "" {
			return fmt.Errorf("config: phase %d has no name", i)
		}
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("config: duplicate phase %q", p.Name)
		}
		byName[p.Name] = p
		if len(p.Tasks) == 0 {
			return fmt.Errorf("config: phase %q has no tasks", p.Name)
		}
		for _, t := range p.Tasks {
			if t.Name == "" {
				return fmt.Errorf("config: phase %q has an unnamed task", p.Name)
			}
			if t.Agent == "" {
				return fmt.Errorf("config: task %s/%s has no agent kind", p.Name, t.Name)
			}
		}
	}
	for _, p := range c.Phases {
		for _, dep := range p.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("config: phase %q depends on unknown phase %q", p.Name, dep)
			}
		}
	}
	return c.checkAcyclic(byName)
}

func (c *Config) checkAcyclic(byName map[string]*PhaseSpec) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // done
	)
	color := make(map[string]int, len(byName))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("config: dependency cycle through phase %q", name)
		case black:
			return nil
		}
		color[name] = gray
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for _, p := range c.Phases {
		if err := visit(p.Name); err != nil {
			return err
		}
	}
	return nil
}
