// Package svcconfig persists the per-appid Bloom parameters (fp rate,
// window, expansion strategy, try_max) that the pool resolves on first use
// of a group. This is control-plane state, loaded once per pool-handle
// acquisition, not touched on the contain/insert hot path. Grounded on the
// teacher's internal/config Store/Config split: a declarative struct plus a
// Store interface, decoupled from any particular backing storage.
package svcconfig

import "context"

// AppConfig is the persisted knob set for one appid.
type AppConfig struct {
	AppID string

	// FPRate is the target false-positive probability for newly minted
	// chunks. Zero means "use the engine default".
	FPRate float64

	// WindowSeconds sizes the bucket timestamp baked into every chunk key
	// minted for this app. Zero means "use the engine default".
	WindowSeconds int64

	// StrategyKind selects which expand.Strategy shape StrategyParams
	// encodes: "fixed", "ladder", or "" for the engine default ladder.
	StrategyKind string

	// StrategyParams holds the strategy's numeric parameters: one value
	// for "fixed", the rung sizes in order for "ladder".
	StrategyParams []int64

	// TryMax bounds how many times a group retries an insert against a
	// freshly extended tail before giving up. Zero means "use the engine
	// default".
	TryMax int
}

// Store persists and loads AppConfig records, keyed by appid.
type Store interface {
	// Load reads the config for appid. Returns nil, nil if none exists.
	Load(ctx context.Context, appid string) (*AppConfig, error)

	// Save persists cfg, creating or overwriting the record for cfg.AppID.
	Save(ctx context.Context, cfg AppConfig) error

	// List returns every persisted AppConfig, sorted ascending by appid.
	List(ctx context.Context) ([]AppConfig, error)
}
