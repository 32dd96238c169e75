package policy

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adina8244/grounded-git-mcp-server/internal/guard"
)

// Duration wraps time.Duration so policy files can say "15m" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the safety policy: time-to-live, execution bounds and per-verb
// guard overrides. The exact guard sets and timeout values are policy
// choices, so they live in a file rather than in code.
type Config struct {
	ProposalTTL       Duration            `yaml:"proposal_ttl"`
	ExecTimeout       Duration            `yaml:"exec_timeout"`
	ReadTimeout       Duration            `yaml:"read_timeout"`
	MaxOutputBytes    int                 `yaml:"max_output_bytes"`
	SchedulerInterval Duration            `yaml:"scheduler_interval"`
	Guards            map[string][]string `yaml:"guards"`
}

// Defaults mirror the limits the original deployment ran with.
func Defaults() Config {
	return Config{
		ProposalTTL:       Duration(15 * time.Minute),
		ExecTimeout:       Duration(30 * time.Second),
		ReadTimeout:       Duration(5 * time.Second),
		MaxOutputBytes:    80000,
		SchedulerInterval: Duration(2 * time.Second),
		Guards:            nil,
	}
}

// GuardOverrides converts the policy's per-verb guard lists to guard names.
func (c Config) GuardOverrides() map[string][]guard.Name {
	if len(c.Guards) == 0 {
		return nil
	}
	out := make(map[string][]guard.Name, len(c.Guards))
	for verb, names := range c.Guards {
		converted := make([]guard.Name, 0, len(names))
		for _, n := range names {
			converted = append(converted, guard.Name(n))
		}
		out[verb] = converted
	}
	return out
}

func (c Config) validate() error {
	if c.ProposalTTL.Std() <= 0 {
		return fmt.Errorf("proposal_ttl must be positive")
	}
	if c.ExecTimeout.Std() <= 0 {
		return fmt.Errorf("exec_timeout must be positive")
	}
	if c.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be positive")
	}
	return nil
}
