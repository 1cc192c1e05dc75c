package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/metrics"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// resetter is implemented by *pgxpool.Pool; it closes every pooled
// connection so the next acquire dials fresh.
type resetter interface {
	Reset()
}

// PostgresStore persists settings, presets, signals and bot status.
// Every call runs under the retry policy; every write runs in its own
// transaction which is rolled back on any error.
type PostgresStore struct {
	db    DB
	retry *retrier
	now   func() time.Time
}

func NewPostgresStore(db DB, policy RetryPolicy, log zerolog.Logger, m *metrics.Metrics) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	s.retry = newRetrier(policy, log.With().Str("component", "store").Logger(), m, s.resetSessions)
	return s
}

func (s *PostgresStore) resetSessions() {
	if r, ok := s.db.(resetter); ok {
		r.Reset()
	}
}

// inTx runs fn in a transaction. The transaction is committed only when fn
// succeeds and is always closed before returning.
func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	return s.retry.do(ctx, op, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}

// Settings

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	type result struct {
		value string
		found bool
	}
	res, err := retryValue(ctx, s.retry, "get_setting", func(ctx context.Context) (result, error) {
		var value pgtype.Text
		err := s.db.QueryRow(ctx, `select value from settings where key = $1`, key).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			return result{}, nil
		}
		if err != nil {
			return result{}, err
		}
		return result{value: value.String, found: true}, nil
	})
	return res.value, res.found, err
}

func (s *PostgresStore) AllSettings(ctx context.Context) (map[string]string, error) {
	return retryValue(ctx, s.retry, "all_settings", func(ctx context.Context) (map[string]string, error) {
		rows, err := s.db.Query(ctx, `select key, value from settings`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make(map[string]string)
		for rows.Next() {
			var key string
			var value pgtype.Text
			if err := rows.Scan(&key, &value); err != nil {
				return nil, err
			}
			out[key] = value.String
		}
		return out, rows.Err()
	})
}

const upsertSetting = `
	insert into settings (key, value, updated_at) values ($1, $2, $3)
	on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at`

func (s *PostgresStore) SaveSetting(ctx context.Context, key, value string) error {
	return s.inTx(ctx, "save_setting", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertSetting, key, value, s.now())
		return err
	})
}

func (s *PostgresStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return s.inTx(ctx, "save_settings", func(tx pgx.Tx) error {
		now := s.now()
		for key, value := range values {
			if _, err := tx.Exec(ctx, upsertSetting, key, value, now); err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, "delete_setting", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `delete from settings where key = $1`, key)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// Presets

func (s *PostgresStore) GetPreset(ctx context.Context, name string) (domain.Preset, error) {
	return retryValue(ctx, s.retry, "get_preset", func(ctx context.Context) (domain.Preset, error) {
		row := s.db.QueryRow(ctx, `select name, description, parameters from presets where name = $1`, name)
		p, err := scanPreset(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Preset{}, fmt.Errorf("preset %s: %w", name, domain.ErrNotFound)
		}
		return p, err
	})
}

func (s *PostgresStore) ListPresets(ctx context.Context) ([]domain.Preset, error) {
	return retryValue(ctx, s.retry, "list_presets", func(ctx context.Context) ([]domain.Preset, error) {
		rows, err := s.db.Query(ctx, `select name, description, parameters from presets order by name`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		presets := make([]domain.Preset, 0)
		for rows.Next() {
			p, err := scanPreset(rows)
			if err != nil {
				return nil, err
			}
			presets = append(presets, p)
		}
		return presets, rows.Err()
	})
}

func (s *PostgresStore) SavePreset(ctx context.Context, preset domain.Preset) error {
	params, err := json.Marshal(preset.Parameters)
	if err != nil {
		return fmt.Errorf("encode preset %s: %w", preset.Name, err)
	}
	return s.inTx(ctx, "save_preset", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			insert into presets (name, description, parameters, created_at, updated_at)
			values ($1, $2, $3, $4, $4)
			on conflict (name) do update set
				parameters = excluded.parameters,
				description = coalesce(excluded.description, presets.description),
				updated_at = excluded.updated_at
		`, preset.Name, nullableText(preset.Description), params, s.now())
		return err
	})
}

func (s *PostgresStore) DeletePreset(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, "delete_preset", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `delete from presets where name = $1`, name)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// Signals

func (s *PostgresStore) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	if signal == nil {
		return errors.New("nil signal")
	}
	sentiment, err := nullableJSON(signal.Sentiment)
	if err != nil {
		return err
	}
	analysis, err := nullableJSON(signal.AIAnalysis)
	if err != nil {
		return err
	}
	createdAt := signal.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var id int64
	err = s.inTx(ctx, "save_signal", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			insert into signals (
				symbol, direction, strength, entry_price, stop_loss, take_profit,
				reason, sentiment, ai_analysis, created_at
			) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			returning id
		`,
			signal.Symbol,
			string(signal.Direction),
			signal.Strength,
			signal.EntryPrice,
			nullableFloat(signal.StopLoss),
			nullableFloat(signal.TakeProfit),
			signal.Reason,
			sentiment,
			analysis,
			createdAt,
		).Scan(&id)
		if err != nil {
			return err
		}
		if err := ensureStatus(ctx, tx); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			update bot_status set total_signals_today = total_signals_today + 1, last_update = $1
			where id = 1
		`, s.now())
		return err
	})
	if err != nil {
		return err
	}
	signal.ID = id
	signal.CreatedAt = createdAt
	return nil
}

const signalColumns = `id, symbol, direction, strength, entry_price, stop_loss, take_profit,
	reason, sentiment, ai_analysis, created_at, executed, execution_time`

func (s *PostgresStore) RecentSignals(ctx context.Context, limit int) ([]domain.Signal, error) {
	return retryValue(ctx, s.retry, "recent_signals", func(ctx context.Context) ([]domain.Signal, error) {
		rows, err := s.db.Query(ctx, `
			select `+signalColumns+`
			from signals
			order by id desc
			limit $1
		`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		signals := make([]domain.Signal, 0, limit)
		for rows.Next() {
			sig, err := scanSignal(rows)
			if err != nil {
				return nil, err
			}
			signals = append(signals, *sig)
		}
		return signals, rows.Err()
	})
}

func (s *PostgresStore) SignalExists(ctx context.Context, signal domain.Signal) (bool, error) {
	return retryValue(ctx, s.retry, "signal_exists", func(ctx context.Context) (bool, error) {
		var exists bool
		err := s.db.QueryRow(ctx, `
			select exists (
				select 1 from signals
				where symbol = $1 and direction = $2 and entry_price = $3 and created_at = $4
			)
		`, signal.Symbol, string(signal.Direction), signal.EntryPrice, signal.CreatedAt).Scan(&exists)
		return exists, err
	})
}

func (s *PostgresStore) GetSignal(ctx context.Context, id int64) (domain.Signal, error) {
	return retryValue(ctx, s.retry, "get_signal", func(ctx context.Context) (domain.Signal, error) {
		row := s.db.QueryRow(ctx, `select `+signalColumns+` from signals where id = $1`, id)
		sig, err := scanSignal(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return domain.Signal{}, err
		}
		return *sig, nil
	})
}

func (s *PostgresStore) MarkSignalExecuted(ctx context.Context, id int64) (bool, error) {
	var transitioned bool
	err := s.inTx(ctx, "mark_signal_executed", func(tx pgx.Tx) error {
		transitioned = false
		tag, err := tx.Exec(ctx, `
			update signals set executed = true, execution_time = $2
			where id = $1 and not executed
		`, id, s.now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `select exists(select 1 from signals where id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("signal %d: %w", id, domain.ErrNotFound)
			}
			return nil
		}
		if err := ensureStatus(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `update bot_status set total_trades_today = total_trades_today + 1 where id = 1`); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	return transitioned, err
}

// Status

func ensureStatus(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `insert into bot_status (id) values (1) on conflict (id) do nothing`)
	return err
}

func (s *PostgresStore) GetStatus(ctx context.Context) (domain.BotStatus, error) {
	return retryValue(ctx, s.retry, "get_status", func(ctx context.Context) (domain.BotStatus, error) {
		var st domain.BotStatus
		err := s.db.QueryRow(ctx, `
			insert into bot_status (id) values (1)
			on conflict (id) do update set id = bot_status.id
			returning running, connected, last_update, bot_version, account_balance,
				total_trades_today, total_signals_today
		`).Scan(
			&st.Running,
			&st.Connected,
			&st.LastUpdate,
			&st.BotVersion,
			&st.AccountBalance,
			&st.TotalTradesToday,
			&st.TotalSignalsToday,
		)
		return st, err
	})
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, patch domain.StatusPatch) error {
	return s.inTx(ctx, "update_status", func(tx pgx.Tx) error {
		if err := ensureStatus(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			update bot_status set
				running = coalesce($1, running),
				connected = coalesce($2, connected),
				bot_version = coalesce($3, bot_version),
				account_balance = coalesce($4, account_balance),
				total_trades_today = coalesce($5, total_trades_today),
				total_signals_today = coalesce($6, total_signals_today),
				last_update = $7
			where id = 1
		`,
			nullableBool(patch.Running),
			nullableBool(patch.Connected),
			nullableString(patch.BotVersion),
			nullableFloat(patch.AccountBalance),
			nullableInt(patch.TotalTradesToday),
			nullableInt(patch.TotalSignalsToday),
			s.now(),
		)
		return err
	})
}

func (s *PostgresStore) ResetDailyCounters(ctx context.Context) error {
	return s.inTx(ctx, "reset_daily_counters", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `update bot_status set total_trades_today = 0, total_signals_today = 0 where id = 1`)
		return err
	})
}

// Helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanPreset(s scanner) (domain.Preset, error) {
	var p domain.Preset
	var description pgtype.Text
	var params []byte
	if err := s.Scan(&p.Name, &description, &params); err != nil {
		return domain.Preset{}, err
	}
	p.Description = description.String
	p.Parameters = make(map[string]string)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p.Parameters); err != nil {
			return domain.Preset{}, fmt.Errorf("decode preset %s: %w", p.Name, err)
		}
	}
	return p, nil
}

func scanSignal(s scanner) (*domain.Signal, error) {
	var sig domain.Signal
	var direction string
	var stopLoss pgtype.Float8
	var takeProfit pgtype.Float8
	var reason pgtype.Text
	var sentiment []byte
	var analysis []byte
	var executionTime pgtype.Timestamptz

	if err := s.Scan(
		&sig.ID,
		&sig.Symbol,
		&direction,
		&sig.Strength,
		&sig.EntryPrice,
		&stopLoss,
		&takeProfit,
		&reason,
		&sentiment,
		&analysis,
		&sig.CreatedAt,
		&sig.Executed,
		&executionTime,
	); err != nil {
		return nil, err
	}

	sig.Direction = domain.Direction(direction)
	sig.Reason = reason.String
	if stopLoss.Valid {
		v := stopLoss.Float64
		sig.StopLoss = &v
	}
	if takeProfit.Valid {
		v := takeProfit.Float64
		sig.TakeProfit = &v
	}
	if executionTime.Valid {
		v := executionTime.Time
		sig.ExecutionTime = &v
	}
	// A corrupt sentiment blob degrades to an empty record, not a failed read.
	if len(sentiment) > 0 {
		sig.Sentiment = &domain.Sentiment{}
		_ = json.Unmarshal(sentiment, sig.Sentiment)
	}
	if len(analysis) > 0 {
		sig.AIAnalysis = &domain.AIAnalysis{}
		_ = json.Unmarshal(analysis, sig.AIAnalysis)
	}
	return &sig, nil
}

func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullableText(v string) any {
	if v == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{Valid: true, String: v}
}

func nullableString(v *string) any {
	if v == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{Valid: true, String: *v}
}

func nullableFloat(v *float64) any {
	if v == nil {
		return pgtype.Float8{Valid: false}
	}
	return pgtype.Float8{Valid: true, Float64: *v}
}

func nullableInt(v *int) any {
	if v == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Valid: true, Int32: int32(*v)}
}

func nullableBool(v *bool) any {
	if v == nil {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Valid: true, Bool: *v}
}

// compile-time check
var _ domain.Store = (*PostgresStore)(nil)
