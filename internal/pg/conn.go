package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// AppName попадает в pg_stat_activity, если строка подключения не задаёт свой.
const AppName = "recordkit"

// Pool — настройки пула database/sql поверх pgx.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

func DefaultPool() Pool {
	return Pool{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute, PingTimeout: 5 * time.Second}
}

// withDefaults заполняет нули значениями DefaultPool; idle не больше open.
func (p Pool) withDefaults() Pool {
	d := DefaultPool()
	if p.MaxOpen <= 0 {
		p.MaxOpen = d.MaxOpen
	}
	if p.MaxIdle <= 0 {
		p.MaxIdle = d.MaxIdle
	}
	if p.MaxIdle > p.MaxOpen {
		p.MaxIdle = p.MaxOpen
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = d.MaxLifetime
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = d.PingTimeout
	}
	return p
}

func connConfig(url string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if cfg.RuntimeParams["application_name"] == "" {
		cfg.RuntimeParams["application_name"] = AppName
	}
	return cfg, nil
}

// Open открывает пул и проверяет соединение пингом в пределах PingTimeout.
func Open(ctx context.Context, url string, p Pool, log zerolog.Logger) (*sql.DB, error) {
	cfg, err := connConfig(url)
	if err != nil {
		return nil, err
	}
	p = p.withDefaults()

	db := stdlib.OpenDB(*cfg)
	db.SetConnMaxLifetime(p.MaxLifetime)
	db.SetMaxOpenConns(p.MaxOpen)
	db.SetMaxIdleConns(p.MaxIdle)

	pingCtx, cancel := context.WithTimeout(ctx, p.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).
		Int("max_open", p.MaxOpen).Int("max_idle", p.MaxIdle).Msg("postgres pool ready")
	return db, nil
}
