package policy

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store holds the active policy and swaps it atomically on reload. Injected
// into the engine and scheduler; never global.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore loads the policy file at path. A missing file is not an error:
// the defaults apply until one is created.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, cfg: Defaults()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active policy.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the policy file. On parse or validation failure the
// previous policy stays active.
func (s *Store) Reload() error {
	cfg, err := load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	log.Info().Str("path", s.path).Dur("ttl", cfg.ProposalTTL.Std()).Msg("safety policy loaded")
	return nil
}

func load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("policy file missing, using defaults")
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse policy file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid policy: %w", err)
	}

	return cfg, nil
}
