package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/failover"
	"VolDesk/internal/hub"
	applogger "VolDesk/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordWrite(kind, backend string)     {}
func (nopMetrics) RecordError(kind string)              {}
func (nopMetrics) RecordFailover(direction string)      {}
func (nopMetrics) SetActiveBackend(name string)         {}
func (nopMetrics) SetSubscribers(n int)                 {}
func (nopMetrics) AddDroppedEvents(n int)               {}
func (nopMetrics) RecordLatency(op string, sec float64) {}

// memBackend is an in-memory Backend for exercising the store.
type memBackend struct {
	name string
	mu   sync.Mutex
	rows []models.Record
}

func (m *memBackend) Name() string                   { return m.name }
func (m *memBackend) Init(ctx context.Context) error { return nil }

func (m *memBackend) Upsert(ctx context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memBackend) Query(ctx context.Context, q models.Query) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Record
	for _, r := range m.rows {
		if r.Kind() != q.Kind {
			continue
		}
		if q.Ticker != "" && r.TickerSymbol() != q.Ticker {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memBackend) ListTickers(ctx context.Context) ([]models.TickerMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []models.TickerMeta
	for _, r := range m.rows {
		if !seen[r.TickerSymbol()] {
			seen[r.TickerSymbol()] = true
			out = append(out, models.TickerMeta{Ticker: r.TickerSymbol(), UpdatedAt: r.AsOfTime()})
		}
	}
	return out, nil
}

func (m *memBackend) RowCounts(ctx context.Context) (map[models.Kind]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.Kind]int64)
	for _, r := range m.rows {
		counts[r.Kind()]++
	}
	return counts, nil
}

func (m *memBackend) Ping(ctx context.Context) error { return nil }
func (m *memBackend) Close() error                   { return nil }

func (m *memBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func newTestStore(t *testing.T) (*Store, *memBackend, *hub.Hub) {
	t.Helper()
	remote := &memBackend{name: "remote"}
	local := &memBackend{name: "local"}
	sel := failover.New(remote, local, failover.Config{
		ProbeTimeout:   100 * time.Millisecond,
		HealthInterval: time.Hour,
		RequestTimeout: time.Second,
	}, applogger.Nop(), nopMetrics{})
	sel.Start(context.Background())
	t.Cleanup(sel.Stop)

	h := hub.New(64, applogger.Nop(), nopMetrics{})
	t.Cleanup(h.Close)

	return New(sel, h, applogger.Nop(), nopMetrics{}), remote, h
}

func validPosition(ticker string) models.Position {
	return models.Position{
		Ticker:      ticker,
		OptionType:  "call",
		Strike:      450,
		Expiry:      "2026-12-18",
		Quantity:    10,
		CostBasis:   12.5,
		MarketPrice: 14.2,
		AsOf:        time.Date(2026, 8, 20, 15, 0, 0, 0, time.UTC),
	}
}

func TestWriteQueryRoundtrip(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	res, err := st.Write(ctx, validPosition("NVDA"))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if res.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", res.Seq)
	}
	if res.Backend != "remote" {
		t.Fatalf("expected remote commit, got %s", res.Backend)
	}

	rows, err := st.Query(ctx, models.Query{Kind: models.KindPosition, Ticker: "NVDA"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	got, ok := rows[0].(models.Position)
	if !ok {
		t.Fatalf("expected Position, got %T", rows[0])
	}
	if got.Strike != 450 || got.OptionType != "call" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestWriteRejectsMalformedRecords(t *testing.T) {
	st, backend, _ := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		rec  models.Record
	}{
		{"missing ticker", models.Position{Strike: 100, AsOf: time.Now()}},
		{"nan strike", func() models.Record {
			p := validPosition("NVDA")
			p.Strike = math.NaN()
			return p
		}()},
		{"negative strike", func() models.Record {
			p := validPosition("NVDA")
			p.Strike = -1
			return p
		}()},
		{"bad option type", func() models.Record {
			p := validPosition("NVDA")
			p.OptionType = "straddle"
			return p
		}()},
		{"zero as_of", func() models.Record {
			p := validPosition("NVDA")
			p.AsOf = time.Time{}
			return p
		}()},
		{"bad severity", models.Alert{
			Ticker: "NVDA", AlertKind: "iv_spike", Severity: "urgent",
			Magnitude: 2.5, TriggeredAt: time.Now(),
		}},
		{"zero window", models.DmaPoint{Ticker: "NVDA", Value: 1, AsOf: time.Now()}},
		{"inf iv", models.IvPoint{
			Ticker: "NVDA", Expiry: "2026-12-18", Strike: 450,
			IV: math.Inf(1), AsOf: time.Now(),
		}},
		{"meta not writable", models.TickerMeta{Ticker: "NVDA", UpdatedAt: time.Now()}},
	}

	for _, tc := range cases {
		_, err := st.Write(ctx, tc.rec)
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if len(verr.Violations) == 0 {
			t.Fatalf("%s: expected field violations", tc.name)
		}
	}
	if backend.count() != 0 {
		t.Fatalf("rejected records must not reach the backend, got %d rows", backend.count())
	}
}

func TestTickerMetaNotWritable(t *testing.T) {
	st, _, _ := newTestStore(t)

	_, err := st.Write(context.Background(), models.TickerMeta{Ticker: "NVDA", UpdatedAt: time.Now()})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSequenceMatchesFanOutOrder(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	sub := st.Subscribe()
	defer sub.Close()

	const n = 20
	for i := 0; i < n; i++ {
		p := validPosition("NVDA")
		p.AsOf = p.AsOf.Add(time.Duration(i) * time.Minute)
		if _, err := st.Write(ctx, p); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for want := uint64(1); want <= n; want++ {
		select {
		case ev := <-sub.Events():
			if ev.Seq != want {
				t.Fatalf("expected seq %d, got %d", want, ev.Seq)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for seq %d", want)
		}
	}
}

func TestConcurrentWritesGetUniqueSequences(t *testing.T) {
	st, backend, _ := newTestStore(t)
	ctx := context.Background()

	tickers := []string{"NVDA", "TSLA", "AMD", "MSFT"}
	const perTicker = 25

	var wg sync.WaitGroup
	seqs := make(chan uint64, len(tickers)*perTicker)
	for _, tk := range tickers {
		wg.Add(1)
		go func(tk string) {
			defer wg.Done()
			for i := 0; i < perTicker; i++ {
				p := validPosition(tk)
				p.AsOf = p.AsOf.Add(time.Duration(i) * time.Minute)
				res, err := st.Write(ctx, p)
				if err != nil {
					t.Errorf("write %s/%d failed: %v", tk, i, err)
					return
				}
				seqs <- res.Seq
			}
		}(tk)
	}
	wg.Wait()
	close(seqs)

	total := len(tickers) * perTicker
	seen := make(map[uint64]bool)
	for s := range seqs {
		if seen[s] {
			t.Fatalf("duplicate sequence %d", s)
		}
		seen[s] = true
	}
	if len(seen) != total {
		t.Fatalf("expected %d unique sequences, got %d", total, len(seen))
	}
	if backend.count() != total {
		t.Fatalf("expected %d rows, got %d", total, backend.count())
	}
}

func TestQueryUnknownKind(t *testing.T) {
	st, _, _ := newTestStore(t)

	if _, err := st.Query(context.Background(), models.Query{Kind: "candles"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestDiagnostics(t *testing.T) {
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Write(ctx, validPosition("NVDA")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	tickers, err := st.ListTickers(ctx)
	if err != nil {
		t.Fatalf("list tickers failed: %v", err)
	}
	if len(tickers) != 1 || tickers[0].Ticker != "NVDA" {
		t.Fatalf("unexpected tickers: %+v", tickers)
	}

	counts, err := st.RowCounts(ctx)
	if err != nil {
		t.Fatalf("row counts failed: %v", err)
	}
	if counts[models.KindPosition] != 1 {
		t.Fatalf("expected 1 position, got %d", counts[models.KindPosition])
	}

	if st.CurrentBackendName() != "remote" {
		t.Fatalf("expected remote, got %s", st.CurrentBackendName())
	}
}
