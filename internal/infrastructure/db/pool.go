package db

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	MaxConns          int32         `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns          int32         `yaml:"min_conns" env:"DB_MIN_CONNS"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" env:"DB_HEALTHCHECK_PERIOD"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// Normalize clamps the connection counts into a usable range.
func (cfg PoolConfig) Normalize() PoolConfig {
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg
}

// withApplicationName tags server-side sessions so they can be told apart in
// pg_stat_activity. A name already present in the URL wins.
func withApplicationName(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.Scheme == "" {
		// Leave keyword/value DSNs alone; pgx will report real problems.
		return dbURL
	}

	q := u.Query()
	if q.Get("application_name") == "" {
		q.Set("application_name", "signalbot")
		u.RawQuery = q.Encode()
	}
	return strings.TrimSpace(u.String())
}

func NewPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	databaseURL = withApplicationName(databaseURL)
	cfg = cfg.Normalize()

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	// Short keepalives so a dropped server connection surfaces as a
	// connection error quickly and the retry path can reset the pool.
	dialer := &net.Dialer{KeepAlive: 5 * time.Second}
	poolCfg.ConnConfig.DialFunc = dialer.DialContext

	return pgxpool.NewWithConfig(ctx, poolCfg)
}
