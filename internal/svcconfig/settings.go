package svcconfig

import (
	"context"
	"fmt"
	"time"

	"sfp/internal/expand"
	"sfp/internal/pool"
)

// SettingsSource adapts a Store into a pool.SettingsSource, resolving a
// persisted AppConfig into the concrete expand.Strategy the pool needs. An
// appid with no persisted config gets the engine's defaults.
type SettingsSource struct {
	Store Store
}

var _ pool.SettingsSource = (*SettingsSource)(nil)

// Settings resolves the pool.AppSettings for appid, falling back to engine
// defaults for any zero-valued field of an absent or partially-set config.
func (s *SettingsSource) Settings(ctx context.Context, appid string) (pool.AppSettings, error) {
	cfg, err := s.Store.Load(ctx, appid)
	if err != nil {
		return pool.AppSettings{}, fmt.Errorf("svcconfig: load settings for appid %s: %w", appid, err)
	}
	if cfg == nil {
		return pool.AppSettings{
			FPRate:   expand.DefaultFPRate,
			Window:   time.Duration(expand.DefaultWindow) * time.Second,
			Strategy: expand.DefaultLadder(),
			TryMax:   3,
		}, nil
	}

	settings := pool.AppSettings{
		FPRate: cfg.FPRate,
		Window: time.Duration(cfg.WindowSeconds) * time.Second,
		TryMax: cfg.TryMax,
	}
	if settings.FPRate <= 0 {
		settings.FPRate = expand.DefaultFPRate
	}
	if settings.Window <= 0 {
		settings.Window = time.Duration(expand.DefaultWindow) * time.Second
	}
	if settings.TryMax <= 0 {
		settings.TryMax = 3
	}

	strategy, err := resolveStrategy(*cfg)
	if err != nil {
		return pool.AppSettings{}, err
	}
	settings.Strategy = strategy

	return settings, nil
}

func resolveStrategy(cfg AppConfig) (expand.Strategy, error) {
	switch cfg.StrategyKind {
	case "", "ladder":
		if len(cfg.StrategyParams) == 0 {
			return expand.DefaultLadder(), nil
		}
		return expand.Ladder(cfg.StrategyParams), nil
	case "fixed":
		if len(cfg.StrategyParams) != 1 {
			return nil, fmt.Errorf("svcconfig: fixed strategy for appid %s needs exactly one param, got %d", cfg.AppID, len(cfg.StrategyParams))
		}
		return expand.Fixed(cfg.StrategyParams[0]), nil
	default:
		return nil, fmt.Errorf("svcconfig: unknown strategy kind %q for appid %s", cfg.StrategyKind, cfg.AppID)
	}
}
