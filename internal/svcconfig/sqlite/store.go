// Package sqlite is a SQLite-backed svcconfig.Store implementation,
// grounded directly on the teacher's internal/config/sqlite package: same
// single-connection-pool + WAL + embedded-migrations shape, adapted from
// the teacher's wide multi-table system config to one small app_configs
// table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"sfp/internal/svcconfig"
)

// Store is a SQLite-based svcconfig.Store implementation.
type Store struct {
	db *sql.DB
}

var _ svcconfig.Store = (*Store)(nil)

// NewStore opens a SQLite database at path and runs migrations.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeParams(params []int64) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal strategy params: %w", err)
	}
	return string(data), nil
}

func decodeParams(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var params []int64
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("unmarshal strategy params: %w", err)
	}
	return params, nil
}

func (s *Store) Load(ctx context.Context, appid string) (*svcconfig.AppConfig, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT appid, fp_rate, window_seconds, strategy_kind, strategy_params, try_max FROM app_configs WHERE appid = ?",
		appid)

	var cfg svcconfig.AppConfig
	var paramsJSON string
	err := row.Scan(&cfg.AppID, &cfg.FPRate, &cfg.WindowSeconds, &cfg.StrategyKind, &paramsJSON, &cfg.TryMax)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load app config %q: %w", appid, err)
	}
	cfg.StrategyParams, err = decodeParams(paramsJSON)
	if err != nil {
		return nil, fmt.Errorf("load app config %q: %w", appid, err)
	}
	return &cfg, nil
}

func (s *Store) Save(ctx context.Context, cfg svcconfig.AppConfig) error {
	paramsJSON, err := encodeParams(cfg.StrategyParams)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_configs (appid, fp_rate, window_seconds, strategy_kind, strategy_params, try_max)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(appid) DO UPDATE SET
			fp_rate = excluded.fp_rate,
			window_seconds = excluded.window_seconds,
			strategy_kind = excluded.strategy_kind,
			strategy_params = excluded.strategy_params,
			try_max = excluded.try_max
	`, cfg.AppID, cfg.FPRate, cfg.WindowSeconds, cfg.StrategyKind, paramsJSON, cfg.TryMax)
	if err != nil {
		return fmt.Errorf("save app config %q: %w", cfg.AppID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]svcconfig.AppConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT appid, fp_rate, window_seconds, strategy_kind, strategy_params, try_max FROM app_configs")
	if err != nil {
		return nil, fmt.Errorf("list app configs: %w", err)
	}
	defer rows.Close()

	var result []svcconfig.AppConfig
	for rows.Next() {
		var cfg svcconfig.AppConfig
		var paramsJSON string
		if err := rows.Scan(&cfg.AppID, &cfg.FPRate, &cfg.WindowSeconds, &cfg.StrategyKind, &paramsJSON, &cfg.TryMax); err != nil {
			return nil, fmt.Errorf("scan app config: %w", err)
		}
		cfg.StrategyParams, err = decodeParams(paramsJSON)
		if err != nil {
			return nil, fmt.Errorf("scan app config: %w", err)
		}
		result = append(result, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppID < result[j].AppID })
	return result, nil
}
