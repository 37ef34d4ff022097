package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
)

// ClickHouseBackend implements the remote replicated backend. All tables are
// ReplacingMergeTree keyed by the record's natural key, so a duplicate
// insert after an ambiguous commit collapses into the existing row instead
// of double-inserting.
type ClickHouseBackend struct {
	db       *sql.DB
	database string
}

// NewClickHouseBackend creates the remote storage backend.
func NewClickHouseBackend(db *sql.DB, database string) repository.Backend {
	return &ClickHouseBackend{db: db, database: database}
}

func (b *ClickHouseBackend) Name() string { return "remote" }

func (b *ClickHouseBackend) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", b.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.positions (
			ticker String, option_type String, strike Float64, expiry String,
			quantity Float64, cost_basis Float64, market_price Float64,
			as_of DateTime64(3)
		) ENGINE = ReplacingMergeTree ORDER BY (ticker, as_of)`, b.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.alerts (
			ticker String, kind String, severity String, magnitude Float64,
			triggered_at DateTime64(3), detail String
		) ENGINE = ReplacingMergeTree ORDER BY (ticker, kind, triggered_at)`, b.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.dma_points (
			ticker String, win Int32, value Float64, as_of DateTime64(3)
		) ENGINE = ReplacingMergeTree ORDER BY (ticker, win, as_of)`, b.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.iv_points (
			ticker String, expiry String, strike Float64, iv Float64,
			as_of DateTime64(3)
		) ENGINE = ReplacingMergeTree ORDER BY (ticker, expiry, strike, as_of)`, b.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ticker_meta (
			ticker String, updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY ticker`, b.database),
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse init: %w", err)
		}
	}
	return nil
}

func (b *ClickHouseBackend) Upsert(ctx context.Context, rec models.Record) error {
	var q string
	var args []any

	switch r := rec.(type) {
	case models.Position:
		q = fmt.Sprintf("INSERT INTO %s.positions (ticker, option_type, strike, expiry, quantity, cost_basis, market_price, as_of) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", b.database)
		args = []any{r.Ticker, r.OptionType, r.Strike, r.Expiry, r.Quantity, r.CostBasis, r.MarketPrice, r.AsOf}
	case models.Alert:
		q = fmt.Sprintf("INSERT INTO %s.alerts (ticker, kind, severity, magnitude, triggered_at, detail) VALUES (?, ?, ?, ?, ?, ?)", b.database)
		args = []any{r.Ticker, r.AlertKind, r.Severity, r.Magnitude, r.TriggeredAt, string(r.Detail)}
	case models.DmaPoint:
		q = fmt.Sprintf("INSERT INTO %s.dma_points (ticker, win, value, as_of) VALUES (?, ?, ?, ?)", b.database)
		args = []any{r.Ticker, int32(r.Window), r.Value, r.AsOf}
	case models.IvPoint:
		q = fmt.Sprintf("INSERT INTO %s.iv_points (ticker, expiry, strike, iv, as_of) VALUES (?, ?, ?, ?, ?)", b.database)
		args = []any{r.Ticker, r.Expiry, r.Strike, r.IV, r.AsOf}
	default:
		return fmt.Errorf("unsupported record kind %q", rec.Kind())
	}

	if _, err := b.db.ExecContext(ctx, q, args...); err != nil {
		return err
	}

	// ReplacingMergeTree(updated_at) keeps the newest row per ticker, so the
	// meta touch is also an idempotent insert.
	metaQ := fmt.Sprintf("INSERT INTO %s.ticker_meta (ticker, updated_at) VALUES (?, ?)", b.database)
	_, err := b.db.ExecContext(ctx, metaQ, rec.TickerSymbol(), time.Now().UTC())
	return err
}

func (b *ClickHouseBackend) Query(ctx context.Context, q models.Query) ([]models.Record, error) {
	where, args := chFilter(q)
	limit := ""
	if q.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var stmt string
	switch q.Kind {
	case models.KindPosition:
		stmt = fmt.Sprintf("SELECT ticker, option_type, strike, expiry, quantity, cost_basis, market_price, as_of FROM %s.positions FINAL%s ORDER BY as_of ASC%s", b.database, where, limit)
	case models.KindAlert:
		stmt = fmt.Sprintf("SELECT ticker, kind, severity, magnitude, triggered_at, detail FROM %s.alerts FINAL%s ORDER BY triggered_at ASC%s", b.database, where, limit)
	case models.KindDmaPoint:
		stmt = fmt.Sprintf("SELECT ticker, win, value, as_of FROM %s.dma_points FINAL%s ORDER BY as_of ASC%s", b.database, where, limit)
	case models.KindIvPoint:
		stmt = fmt.Sprintf("SELECT ticker, expiry, strike, iv, as_of FROM %s.iv_points FINAL%s ORDER BY as_of ASC%s", b.database, where, limit)
	default:
		return nil, fmt.Errorf("unsupported query kind %q", q.Kind)
	}

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec, err := scanCHRecord(q.Kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *ClickHouseBackend) ListTickers(ctx context.Context) ([]models.TickerMeta, error) {
	stmt := fmt.Sprintf("SELECT ticker, updated_at FROM %s.ticker_meta FINAL ORDER BY ticker ASC", b.database)
	rows, err := b.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TickerMeta
	for rows.Next() {
		var m models.TickerMeta
		if err := rows.Scan(&m.Ticker, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (b *ClickHouseBackend) RowCounts(ctx context.Context) (map[models.Kind]int64, error) {
	counts := make(map[models.Kind]int64, 5)
	for kind, table := range chTables {
		var n int64
		stmt := fmt.Sprintf("SELECT count() FROM %s.%s FINAL", b.database, table)
		if err := b.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, nil
}

func (b *ClickHouseBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *ClickHouseBackend) Close() error {
	return nil // pool is owned by pkg/clickhouse.Client
}

var chTables = map[models.Kind]string{
	models.KindPosition:   "positions",
	models.KindAlert:      "alerts",
	models.KindDmaPoint:   "dma_points",
	models.KindIvPoint:    "iv_points",
	models.KindTickerMeta: "ticker_meta",
}

func chFilter(q models.Query) (string, []any) {
	var conds []string
	var args []any
	tsCol := "as_of"
	if q.Kind == models.KindAlert {
		tsCol = "triggered_at"
	}
	if q.Ticker != "" {
		conds = append(conds, "ticker = ?")
		args = append(args, q.Ticker)
	}
	if !q.From.IsZero() {
		conds = append(conds, tsCol+" >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		conds = append(conds, tsCol+" <= ?")
		args = append(args, q.To)
	}
	if q.Kind == models.KindDmaPoint && q.Window > 0 {
		conds = append(conds, "win = ?")
		args = append(args, int32(q.Window))
	}
	if q.Kind == models.KindIvPoint {
		if q.Expiry != "" {
			conds = append(conds, "expiry = ?")
			args = append(args, q.Expiry)
		}
		if q.Strike > 0 {
			conds = append(conds, "strike = ?")
			args = append(args, q.Strike)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanCHRecord(kind models.Kind, rows *sql.Rows) (models.Record, error) {
	switch kind {
	case models.KindPosition:
		var r models.Position
		if err := rows.Scan(&r.Ticker, &r.OptionType, &r.Strike, &r.Expiry, &r.Quantity, &r.CostBasis, &r.MarketPrice, &r.AsOf); err != nil {
			return nil, err
		}
		return r, nil
	case models.KindAlert:
		var r models.Alert
		var detail string
		if err := rows.Scan(&r.Ticker, &r.AlertKind, &r.Severity, &r.Magnitude, &r.TriggeredAt, &detail); err != nil {
			return nil, err
		}
		if detail != "" {
			r.Detail = []byte(detail)
		}
		return r, nil
	case models.KindDmaPoint:
		var r models.DmaPoint
		var window int32
		if err := rows.Scan(&r.Ticker, &window, &r.Value, &r.AsOf); err != nil {
			return nil, err
		}
		r.Window = int(window)
		return r, nil
	case models.KindIvPoint:
		var r models.IvPoint
		if err := rows.Scan(&r.Ticker, &r.Expiry, &r.Strike, &r.IV, &r.AsOf); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported scan kind %q", kind)
	}
}
