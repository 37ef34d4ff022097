package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
)

func newTestSQLite(t *testing.T) repository.Backend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return b
}

func TestSQLiteUpsertRoundtrip(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)

	recs := []models.Record{
		models.Position{
			Ticker: "NVDA", OptionType: "call", Strike: 450, Expiry: "2026-12-18",
			Quantity: 10, CostBasis: 12.5, MarketPrice: 14.2, AsOf: asOf,
		},
		models.Alert{
			Ticker: "NVDA", AlertKind: "iv_spike", Severity: "high",
			Magnitude: 2.5, TriggeredAt: asOf, Detail: []byte(`{"sigma":3.1}`),
		},
		models.DmaPoint{Ticker: "NVDA", Window: 50, Value: 431.2, AsOf: asOf},
		models.IvPoint{Ticker: "NVDA", Expiry: "2026-12-18", Strike: 450, IV: 0.62, AsOf: asOf},
	}
	for _, rec := range recs {
		if err := b.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", rec.Kind(), err)
		}
	}

	for _, rec := range recs {
		rows, err := b.Query(ctx, models.Query{Kind: rec.Kind(), Ticker: "NVDA"})
		if err != nil {
			t.Fatalf("query %s: %v", rec.Kind(), err)
		}
		if len(rows) != 1 {
			t.Fatalf("%s: expected 1 row, got %d", rec.Kind(), len(rows))
		}
		if rows[0].TickerSymbol() != "NVDA" {
			t.Fatalf("%s: wrong ticker %q", rec.Kind(), rows[0].TickerSymbol())
		}
		if !rows[0].AsOfTime().Equal(asOf) {
			t.Fatalf("%s: as-of mismatch %v", rec.Kind(), rows[0].AsOfTime())
		}
	}
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)

	p := models.DmaPoint{Ticker: "NVDA", Window: 50, Value: 431.2, AsOf: asOf}
	if err := b.Upsert(ctx, p); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	p.Value = 432.0
	if err := b.Upsert(ctx, p); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := b.Query(ctx, models.Query{Kind: models.KindDmaPoint, Ticker: "NVDA"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("duplicate natural key must overwrite, got %d rows", len(rows))
	}
	got := rows[0].(models.DmaPoint)
	if got.Value != 432.0 {
		t.Fatalf("expected last write to win, got %v", got.Value)
	}
}

func TestSQLiteQueryFilters(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := models.DmaPoint{Ticker: "NVDA", Window: 50, Value: float64(i), AsOf: base.AddDate(0, 0, i)}
		if err := b.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := b.Upsert(ctx, models.DmaPoint{Ticker: "NVDA", Window: 200, Value: 9, AsOf: base}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := b.Upsert(ctx, models.DmaPoint{Ticker: "TSLA", Window: 50, Value: 7, AsOf: base}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := b.Query(ctx, models.Query{
		Kind:   models.KindDmaPoint,
		Ticker: "NVDA",
		Window: 50,
		From:   base.AddDate(0, 0, 1),
		To:     base.AddDate(0, 0, 3),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows in range, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].AsOfTime().Before(rows[i-1].AsOfTime()) {
			t.Fatalf("rows not ordered by as-of ascending")
		}
	}

	limited, err := b.Query(ctx, models.Query{Kind: models.KindDmaPoint, Ticker: "NVDA", Window: 50, Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited))
	}
}

func TestSQLiteTickerMetaAndCounts(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()
	asOf := time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC)

	_ = b.Upsert(ctx, models.DmaPoint{Ticker: "TSLA", Window: 50, Value: 1, AsOf: asOf})
	_ = b.Upsert(ctx, models.DmaPoint{Ticker: "AMD", Window: 50, Value: 2, AsOf: asOf})
	_ = b.Upsert(ctx, models.IvPoint{Ticker: "AMD", Expiry: "2026-12-18", Strike: 100, IV: 0.4, AsOf: asOf})

	tickers, err := b.ListTickers(ctx)
	if err != nil {
		t.Fatalf("list tickers: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(tickers))
	}
	if tickers[0].Ticker != "AMD" || tickers[1].Ticker != "TSLA" {
		t.Fatalf("expected symbol ordering, got %+v", tickers)
	}

	counts, err := b.RowCounts(ctx)
	if err != nil {
		t.Fatalf("row counts: %v", err)
	}
	if counts[models.KindDmaPoint] != 2 {
		t.Fatalf("expected 2 dma rows, got %d", counts[models.KindDmaPoint])
	}
	if counts[models.KindIvPoint] != 1 {
		t.Fatalf("expected 1 iv row, got %d", counts[models.KindIvPoint])
	}
	if counts[models.KindTickerMeta] != 2 {
		t.Fatalf("expected 2 meta rows, got %d", counts[models.KindTickerMeta])
	}
}
