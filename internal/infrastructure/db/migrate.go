package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of a pool Migrate needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate creates the tables the signal bot persists into.
// bot_status is pinned to id=1 so the singleton invariant lives in the schema.
func Migrate(ctx context.Context, db Execer) error {
	stmts := []string{
		`create table if not exists settings (
			id bigserial primary key,
			key varchar(255) not null unique,
			value text null,
			updated_at timestamptz not null default now()
		);`,
		`create table if not exists presets (
			id bigserial primary key,
			name varchar(255) not null unique,
			description text null,
			parameters jsonb not null default '{}'::jsonb,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		);`,
		`create table if not exists signals (
			id bigserial primary key,
			symbol varchar(20) not null,
			direction varchar(10) not null,
			strength int not null,
			entry_price double precision not null,
			stop_loss double precision null,
			take_profit double precision null,
			reason text null,
			sentiment jsonb null,
			ai_analysis jsonb null,
			created_at timestamptz not null default now(),
			executed boolean not null default false,
			execution_time timestamptz null
		);`,
		`create index if not exists signals_source_idx on signals(symbol, created_at);`,
		`create table if not exists bot_status (
			id int primary key default 1 check (id = 1),
			running boolean not null default true,
			connected boolean not null default false,
			last_update timestamptz not null default now(),
			bot_version varchar(20) not null default '1.0',
			account_balance double precision not null default 10000,
			total_trades_today int not null default 0,
			total_signals_today int not null default 0
		);`,
		`insert into bot_status (id) values (1) on conflict (id) do nothing;`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
