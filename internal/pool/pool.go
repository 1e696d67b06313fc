// Package pool implements the top-level facade a caller (the HTTP API, the
// CLI, the REPL) drives: contain/insert/batch_contain/batch_insert scoped
// by (appid, group), with one lazily-created, process-cached Group handle
// per (appid, group) pair. Grounded on
// original_source/sgflt/src/filter_pool.rs's pool-of-groups shape, adapted
// from its single-appid pool to one process-wide cache keyed by (appid,
// group) since this service is multi-tenant.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sfp/internal/bitmap"
	"sfp/internal/expand"
	"sfp/internal/filterinfo"
	"sfp/internal/group"
	"sfp/internal/logging"
	"sfp/internal/notify"
)

// AppSettings are the per-appid Bloom parameters a Pool needs to build a
// group handle for that app. The caller (typically backed by svcconfig)
// supplies these; the pool itself holds no opinion about where they live.
type AppSettings struct {
	FPRate   float64
	Window   time.Duration
	Strategy expand.Strategy
	TryMax   int
}

// SettingsSource resolves the current Bloom parameters for an appid.
type SettingsSource interface {
	Settings(ctx context.Context, appid string) (AppSettings, error)
}

// Config configures a Pool.
type Config struct {
	Bitmap   bitmap.Store
	Registry filterinfo.Registry
	Settings SettingsSource
	Notify   *notify.Signal
	Logger   *slog.Logger
}

// Pool is the process-wide facade over every (appid, group) a caller
// addresses. Group handles are built lazily on first use and cached for
// the life of the process.
type Pool struct {
	bitmap   bitmap.Store
	registry filterinfo.Registry
	settings SettingsSource
	notify   *notify.Signal
	logger   *slog.Logger

	mu     sync.Mutex
	groups map[groupHandleKey]*group.Group
}

type groupHandleKey struct {
	appid string
	name  string
}

// New builds an empty Pool.
func New(cfg Config) *Pool {
	return &Pool{
		bitmap:   cfg.Bitmap,
		registry: cfg.Registry,
		settings: cfg.Settings,
		notify:   cfg.Notify,
		logger:   logging.Default(cfg.Logger).With("component", "pool"),
		groups:   make(map[groupHandleKey]*group.Group),
	}
}

// handle returns the cached Group for (appid, groupName), building and
// loading one on first use.
func (p *Pool) handle(ctx context.Context, appid, groupName string) (*group.Group, error) {
	key := groupHandleKey{appid: appid, name: groupName}

	p.mu.Lock()
	g, ok := p.groups[key]
	p.mu.Unlock()
	if ok {
		return g, nil
	}

	settings, err := p.settings.Settings(ctx, appid)
	if err != nil {
		return nil, fmt.Errorf("pool: resolve settings for appid %s: %w", appid, err)
	}

	expander := expand.New(expand.Config{
		AppID:    appid,
		FPRate:   settings.FPRate,
		Window:   settings.Window,
		Strategy: settings.Strategy,
		Bitmap:   p.bitmap,
		Registry: p.registry,
	})

	g = group.New(group.Config{
		Name:     groupName,
		TryMax:   settings.TryMax,
		Expander: expander,
		Bitmap:   p.bitmap,
		Registry: p.registry,
		Notify:   p.notify,
		Logger:   p.logger,
	})
	if err := g.Load(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.groups[key]; ok {
		// Another goroutine built the same handle first; keep its
		// instance so every caller converges on one cached Group.
		p.mu.Unlock()
		return existing, nil
	}
	p.groups[key] = g
	p.mu.Unlock()
	return g, nil
}

// Contain reports whether key is a member of (appid, groupName). Refreshes
// the cached handle first: a handle is cached for the life of the process,
// so without this a group another process has extended (and inserted into)
// would never surface in this process's Contain — a false negative, not
// just a stale read.
func (p *Pool) Contain(ctx context.Context, appid, groupName string, key []byte) (bool, error) {
	g, err := p.handle(ctx, appid, groupName)
	if err != nil {
		return false, err
	}
	if err := g.Refresh(ctx); err != nil {
		return false, err
	}
	return g.Contain(ctx, key)
}

// Insert adds key to (appid, groupName).
func (p *Pool) Insert(ctx context.Context, appid, groupName string, key []byte) error {
	g, err := p.handle(ctx, appid, groupName)
	if err != nil {
		return err
	}
	if err := g.Refresh(ctx); err != nil {
		return err
	}
	return g.Insert(ctx, key)
}

// BatchContain checks membership for many keys in one (appid, groupName) in
// one pass.
func (p *Pool) BatchContain(ctx context.Context, appid, groupName string, keys [][]byte) ([]bool, error) {
	g, err := p.handle(ctx, appid, groupName)
	if err != nil {
		return nil, err
	}
	if err := g.Refresh(ctx); err != nil {
		return nil, err
	}
	return g.BatchContain(ctx, keys)
}

// BatchInsert adds many keys to one (appid, groupName) in one pass.
func (p *Pool) BatchInsert(ctx context.Context, appid, groupName string, keys [][]byte) error {
	g, err := p.handle(ctx, appid, groupName)
	if err != nil {
		return err
	}
	if err := g.Refresh(ctx); err != nil {
		return err
	}
	return g.BatchInsert(ctx, keys)
}

// ChunkCount reports how many chunks (appid, groupName) currently has, for
// operator inspection (the REPL's chunks command).
func (p *Pool) ChunkCount(ctx context.Context, appid, groupName string) (int, error) {
	g, err := p.handle(ctx, appid, groupName)
	if err != nil {
		return 0, err
	}
	return g.ChunkCount(), nil
}
