// Package journal keeps a SQLite record of analysis requests. Only request
// metadata and outcomes are stored; series values never leave memory.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/4ea-ind/ssatrend/internal/store"
	"go.uber.org/zap"
)

// Config controls the journal.
type Config struct {
	Enabled             bool          `mapstructure:"enabled"`
	Path                string        `mapstructure:"path"`
	Retention           time.Duration `mapstructure:"retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns the journal defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		Path:                "ssatrend.db",
		Retention:           7 * 24 * time.Hour,
		MaintenanceInterval: time.Hour,
	}
}

// Entry is one journaled request.
type Entry struct {
	ID             string        `json:"id"`
	ReceivedAt     time.Time     `json:"received_at"`
	Transport      string        `json:"transport"`
	Indicator      string        `json:"indicator,omitempty"`
	Symbol         string        `json:"symbol,omitempty"`
	Timeframe      string        `json:"timeframe,omitempty"`
	N              int           `json:"n"`
	Window         int           `json:"window"`
	TopK           int           `json:"topk"`
	Half           int           `json:"half"`
	Horizon        int           `json:"horizon"`
	RepaintBars    int           `json:"repaint_bars"`
	OK             bool          `json:"ok"`
	Err            string        `json:"err,omitempty"`
	ForecastMethod string        `json:"forecast_method,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// Journal records entries and purges them after the retention period.
type Journal struct {
	db     *store.DB
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New migrates the journal schema in db.
func New(ctx context.Context, db *store.DB, cfg Config, logger *zap.Logger) (*Journal, error) {
	if err := db.Migrate(ctx, "journal", migrations()); err != nil {
		return nil, fmt.Errorf("journal migrations: %w", err)
	}
	return &Journal{db: db, cfg: cfg, logger: logger}, nil
}

// Record stores e.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.SQL().ExecContext(ctx, `
		INSERT INTO journal_requests (
			id, received_at, transport, indicator, symbol, timeframe,
			n, window_size, topk, half, horizon, repaint_bars,
			ok, err, forecast_method, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReceivedAt.UTC().UnixMilli(), e.Transport, e.Indicator, e.Symbol, e.Timeframe,
		e.N, e.Window, e.TopK, e.Half, e.Horizon, e.RepaintBars,
		e.OK, e.Err, e.ForecastMethod, e.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", e.ID, err)
	}
	return nil
}

// List returns up to limit entries, newest first. symbol filters when non-empty.
func (j *Journal) List(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, received_at, transport, indicator, symbol, timeframe,
		       n, window_size, topk, half, horizon, repaint_bars,
		       ok, err, forecast_method, duration_ns
		FROM journal_requests`
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY received_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			receivedMs int64
			durationNs int64
		)
		if err := rows.Scan(
			&e.ID, &receivedMs, &e.Transport, &e.Indicator, &e.Symbol, &e.Timeframe,
			&e.N, &e.Window, &e.TopK, &e.Half, &e.Horizon, &e.RepaintBars,
			&e.OK, &e.Err, &e.ForecastMethod, &durationNs,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.ReceivedAt = time.UnixMilli(receivedMs).UTC()
		e.Duration = time.Duration(durationNs)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes entries received before cutoff and returns how many were removed.
func (j *Journal) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.SQL().ExecContext(ctx,
		"DELETE FROM journal_requests WHERE received_at < ?", cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge journal: %w", err)
	}
	return res.RowsAffected()
}

// Start runs retention maintenance every MaintenanceInterval until ctx is done.
func (j *Journal) Start(ctx context.Context) {
	if j.cfg.MaintenanceInterval <= 0 || j.cfg.Retention <= 0 {
		return
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.cfg.MaintenanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.runMaintenance(ctx)
			}
		}
	}()
}

// Wait blocks until the maintenance goroutine has exited.
func (j *Journal) Wait() {
	j.wg.Wait()
}

func (j *Journal) runMaintenance(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := j.Purge(ctx, time.Now().Add(-j.cfg.Retention))
	if err != nil {
		j.logger.Warn("failed to purge journal", zap.Error(err))
		return
	}
	if deleted > 0 {
		j.logger.Info("purged journal entries", zap.Int64("count", deleted))
	}
}

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create journal_requests",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS journal_requests (
						id              TEXT    PRIMARY KEY,
						received_at     INTEGER NOT NULL,
						transport       TEXT    NOT NULL,
						indicator       TEXT    NOT NULL DEFAULT '',
						symbol          TEXT    NOT NULL DEFAULT '',
						timeframe       TEXT    NOT NULL DEFAULT '',
						n               INTEGER NOT NULL,
						window_size     INTEGER NOT NULL,
						topk            INTEGER NOT NULL,
						half            INTEGER NOT NULL,
						horizon         INTEGER NOT NULL,
						repaint_bars    INTEGER NOT NULL,
						ok              INTEGER NOT NULL,
						err             TEXT    NOT NULL DEFAULT '',
						forecast_method TEXT    NOT NULL DEFAULT '',
						duration_ns     INTEGER NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_received ON journal_requests(received_at)`,
					`CREATE INDEX IF NOT EXISTS idx_journal_symbol ON journal_requests(symbol, received_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
