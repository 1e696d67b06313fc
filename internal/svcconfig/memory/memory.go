// Package memory is an in-process svcconfig.Store backed by a mutex and a
// map, for tests and single-process deployments that don't need config to
// survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"sfp/internal/svcconfig"
)

// Store is a mutex-protected, in-memory svcconfig.Store.
type Store struct {
	mu      sync.Mutex
	configs map[string]svcconfig.AppConfig
}

var _ svcconfig.Store = (*Store)(nil)

// New builds an empty Store.
func New() *Store {
	return &Store{configs: make(map[string]svcconfig.AppConfig)}
}

func (s *Store) Load(ctx context.Context, appid string) (*svcconfig.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[appid]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *Store) Save(ctx context.Context, cfg svcconfig.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.AppID] = cfg
	return nil
}

func (s *Store) List(ctx context.Context) ([]svcconfig.AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]svcconfig.AppConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppID < result[j].AppID })
	return result, nil
}
