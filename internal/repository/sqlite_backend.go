package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
)

// SQLiteBackend implements the local embedded fallback backend on an
// on-disk SQLite file. Natural keys are primary keys, so the same
// idempotent-overwrite semantics as the remote hold via ON CONFLICT DO
// UPDATE. Timestamps are stored as unix milliseconds.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the local database at path.
func NewSQLiteBackend(path string) (repository.Backend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// SQLite allows one writer at a time; a single connection sidesteps
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Name() string { return "local" }

func (b *SQLiteBackend) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			ticker TEXT NOT NULL, option_type TEXT, strike REAL, expiry TEXT,
			quantity REAL, cost_basis REAL, market_price REAL,
			as_of INTEGER NOT NULL,
			PRIMARY KEY (ticker, as_of)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			ticker TEXT NOT NULL, kind TEXT NOT NULL, severity TEXT,
			magnitude REAL, triggered_at INTEGER NOT NULL, detail TEXT,
			PRIMARY KEY (ticker, kind, triggered_at)
		)`,
		`CREATE TABLE IF NOT EXISTS dma_points (
			ticker TEXT NOT NULL, win INTEGER NOT NULL, value REAL,
			as_of INTEGER NOT NULL,
			PRIMARY KEY (ticker, win, as_of)
		)`,
		`CREATE TABLE IF NOT EXISTS iv_points (
			ticker TEXT NOT NULL, expiry TEXT NOT NULL, strike REAL NOT NULL,
			iv REAL, as_of INTEGER NOT NULL,
			PRIMARY KEY (ticker, expiry, strike, as_of)
		)`,
		`CREATE TABLE IF NOT EXISTS ticker_meta (
			ticker TEXT PRIMARY KEY, updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Upsert(ctx context.Context, rec models.Record) error {
	var q string
	var args []any

	switch r := rec.(type) {
	case models.Position:
		q = `INSERT INTO positions (ticker, option_type, strike, expiry, quantity, cost_basis, market_price, as_of)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticker, as_of) DO UPDATE SET
			option_type=excluded.option_type, strike=excluded.strike, expiry=excluded.expiry,
			quantity=excluded.quantity, cost_basis=excluded.cost_basis, market_price=excluded.market_price`
		args = []any{r.Ticker, r.OptionType, r.Strike, r.Expiry, r.Quantity, r.CostBasis, r.MarketPrice, r.AsOf.UnixMilli()}
	case models.Alert:
		q = `INSERT INTO alerts (ticker, kind, severity, magnitude, triggered_at, detail)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (ticker, kind, triggered_at) DO UPDATE SET
			severity=excluded.severity, magnitude=excluded.magnitude, detail=excluded.detail`
		args = []any{r.Ticker, r.AlertKind, r.Severity, r.Magnitude, r.TriggeredAt.UnixMilli(), string(r.Detail)}
	case models.DmaPoint:
		q = `INSERT INTO dma_points (ticker, win, value, as_of)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (ticker, win, as_of) DO UPDATE SET value=excluded.value`
		args = []any{r.Ticker, r.Window, r.Value, r.AsOf.UnixMilli()}
	case models.IvPoint:
		q = `INSERT INTO iv_points (ticker, expiry, strike, iv, as_of)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (ticker, expiry, strike, as_of) DO UPDATE SET iv=excluded.iv`
		args = []any{r.Ticker, r.Expiry, r.Strike, r.IV, r.AsOf.UnixMilli()}
	default:
		return fmt.Errorf("unsupported record kind %q", rec.Kind())
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return err
	}
	metaQ := `INSERT INTO ticker_meta (ticker, updated_at) VALUES (?, ?)
		ON CONFLICT (ticker) DO UPDATE SET updated_at=excluded.updated_at`
	if _, err := tx.ExecContext(ctx, metaQ, rec.TickerSymbol(), time.Now().UTC().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Query(ctx context.Context, q models.Query) ([]models.Record, error) {
	where, args := sqliteFilter(q)
	limit := ""
	if q.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var stmt string
	switch q.Kind {
	case models.KindPosition:
		stmt = "SELECT ticker, option_type, strike, expiry, quantity, cost_basis, market_price, as_of FROM positions" + where + " ORDER BY as_of ASC" + limit
	case models.KindAlert:
		stmt = "SELECT ticker, kind, severity, magnitude, triggered_at, detail FROM alerts" + where + " ORDER BY triggered_at ASC" + limit
	case models.KindDmaPoint:
		stmt = "SELECT ticker, win, value, as_of FROM dma_points" + where + " ORDER BY as_of ASC" + limit
	case models.KindIvPoint:
		stmt = "SELECT ticker, expiry, strike, iv, as_of FROM iv_points" + where + " ORDER BY as_of ASC" + limit
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
		rec, err := scanSQLiteRecord(q.Kind, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) ListTickers(ctx context.Context) ([]models.TickerMeta, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT ticker, updated_at FROM ticker_meta ORDER BY ticker ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TickerMeta
	for rows.Next() {
		var m models.TickerMeta
		var ms int64
		if err := rows.Scan(&m.Ticker, &ms); err != nil {
			return nil, err
		}
		m.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) RowCounts(ctx context.Context) (map[models.Kind]int64, error) {
	tables := map[models.Kind]string{
		models.KindPosition:   "positions",
		models.KindAlert:      "alerts",
		models.KindDmaPoint:   "dma_points",
		models.KindIvPoint:    "iv_points",
		models.KindTickerMeta: "ticker_meta",
	}
	counts := make(map[models.Kind]int64, len(tables))
	for kind, table := range tables {
		var n int64
		if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, nil
}

func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func sqliteFilter(q models.Query) (string, []any) {
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
		args = append(args, q.From.UnixMilli())
	}
	if !q.To.IsZero() {
		conds = append(conds, tsCol+" <= ?")
		args = append(args, q.To.UnixMilli())
	}
	if q.Kind == models.KindDmaPoint && q.Window > 0 {
		conds = append(conds, "win = ?")
		args = append(args, q.Window)
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

func scanSQLiteRecord(kind models.Kind, rows *sql.Rows) (models.Record, error) {
	switch kind {
	case models.KindPosition:
		var r models.Position
		var ms int64
		if err := rows.Scan(&r.Ticker, &r.OptionType, &r.Strike, &r.Expiry, &r.Quantity, &r.CostBasis, &r.MarketPrice, &ms); err != nil {
			return nil, err
		}
		r.AsOf = time.UnixMilli(ms).UTC()
		return r, nil
	case models.KindAlert:
		var r models.Alert
		var ms int64
		var detail string
		if err := rows.Scan(&r.Ticker, &r.AlertKind, &r.Severity, &r.Magnitude, &ms, &detail); err != nil {
			return nil, err
		}
		r.TriggeredAt = time.UnixMilli(ms).UTC()
		if detail != "" {
			r.Detail = []byte(detail)
		}
		return r, nil
	case models.KindDmaPoint:
		var r models.DmaPoint
		var ms int64
		if err := rows.Scan(&r.Ticker, &r.Window, &r.Value, &ms); err != nil {
			return nil, err
		}
		r.AsOf = time.UnixMilli(ms).UTC()
		return r, nil
	case models.KindIvPoint:
		var r models.IvPoint
		var ms int64
		if err := rows.Scan(&r.Ticker, &r.Expiry, &r.Strike, &r.IV, &ms); err != nil {
			return nil, err
		}
		r.AsOf = time.UnixMilli(ms).UTC()
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported scan kind %q", kind)
	}
}
