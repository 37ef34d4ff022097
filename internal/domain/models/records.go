package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies one of the persisted entity kinds.
type Kind string

const (
	KindPosition   Kind = "position"
	KindAlert      Kind = "alert"
	KindDmaPoint   Kind = "dma_point"
	KindIvPoint    Kind = "iv_point"
	KindTickerMeta Kind = "ticker_meta"
)

// WritableKinds lists the kinds that ingestion may write directly.
// TickerMeta is maintained by the store as a side effect of other writes.
func WritableKinds() []Kind {
	return []Kind{KindPosition, KindAlert, KindDmaPoint, KindIvPoint}
}

// Record is a persisted time-series entity. Records are immutable once
// written; a later as-of timestamp for the same natural key produces a new
// row, and a repeated write of the same key is an idempotent overwrite.
type Record interface {
	Kind() Kind
	TickerSymbol() string
	AsOfTime() time.Time
}

// TickerMeta tracks which tickers exist and when each was last written. It
// is maintained by the store and not directly writable.
type TickerMeta struct {
	Ticker    string    `json:"ticker"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m TickerMeta) Kind() Kind           { return KindTickerMeta }
func (m TickerMeta) TickerSymbol() string { return m.Ticker }
func (m TickerMeta) AsOfTime() time.Time  { return m.UpdatedAt }

// Position is an options position snapshot. Keyed by (ticker, as_of); the
// latest as-of supersedes for "current" reads, history is retained.
type Position struct {
	Ticker      string    `json:"ticker" validate:"required"`
	OptionType  string    `json:"option_type,omitempty" validate:"omitempty,oneof=call put"`
	Strike      float64   `json:"strike" validate:"finite,gte=0"`
	Expiry      string    `json:"expiry,omitempty"`
	Quantity    float64   `json:"quantity" validate:"finite"`
	CostBasis   float64   `json:"cost_basis" validate:"finite"`
	MarketPrice float64   `json:"market_price" validate:"finite"`
	AsOf        time.Time `json:"as_of" validate:"required"`
}

func (p Position) Kind() Kind           { return KindPosition }
func (p Position) TickerSymbol() string { return p.Ticker }
func (p Position) AsOfTime() time.Time  { return p.AsOf }

// Alert is an append-only log entry for a detected condition, e.g. an IV
// spike or a large daily price move. Detail carries an opaque payload shaped
// by whatever detector produced the alert.
type Alert struct {
	Ticker      string          `json:"ticker" validate:"required"`
	AlertKind   string          `json:"kind" validate:"required"`
	Severity    string          `json:"severity" validate:"required,oneof=high medium low"`
	Magnitude   float64         `json:"magnitude" validate:"finite"`
	TriggeredAt time.Time       `json:"triggered_at" validate:"required"`
	Detail      json.RawMessage `json:"detail,omitempty"`
}

func (a Alert) Kind() Kind           { return KindAlert }
func (a Alert) TickerSymbol() string { return a.Ticker }
func (a Alert) AsOfTime() time.Time  { return a.TriggeredAt }

// DmaPoint is one moving-average observation, e.g. the 50- or 200-day value.
type DmaPoint struct {
	Ticker string    `json:"ticker" validate:"required"`
	Window int       `json:"window" validate:"required,gt=0"`
	Value  float64   `json:"value" validate:"finite"`
	AsOf   time.Time `json:"as_of" validate:"required"`
}

func (d DmaPoint) Kind() Kind           { return KindDmaPoint }
func (d DmaPoint) TickerSymbol() string { return d.Ticker }
func (d DmaPoint) AsOfTime() time.Time  { return d.AsOf }

// IvPoint is one implied-volatility observation at an option-chain
// coordinate (expiry, strike).
type IvPoint struct {
	Ticker string    `json:"ticker" validate:"required"`
	Expiry string    `json:"expiry" validate:"required"`
	Strike float64   `json:"strike" validate:"finite,gt=0"`
	IV     float64   `json:"iv" validate:"finite,gte=0"`
	AsOf   time.Time `json:"as_of" validate:"required"`
}

func (p IvPoint) Kind() Kind           { return KindIvPoint }
func (p IvPoint) TickerSymbol() string { return p.Ticker }
func (p IvPoint) AsOfTime() time.Time  { return p.AsOf }

// NewRecord returns a zero record of the given kind, for decoding payloads.
func NewRecord(k Kind) (Record, error) {
	switch k {
	case KindPosition:
		return Position{}, nil
	case KindAlert:
		return Alert{}, nil
	case KindDmaPoint:
		return DmaPoint{}, nil
	case KindIvPoint:
		return IvPoint{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", k)
	}
}

// Query filters a read against one entity kind. Zero-valued fields are
// unbounded. Results are always ordered by as-of ascending.
type Query struct {
	Kind   Kind
	Ticker string
	From   time.Time
	To     time.Time
	Window int     // DmaPoint only
	Expiry string  // IvPoint only
	Strike float64 // IvPoint only
	Limit  int
}

// CommitResult reports a durable write: the committed record, the store-wide
// sequence number assigned to it, and the backend that took the commit.
type CommitResult struct {
	Seq     uint64 `json:"seq"`
	Backend string `json:"backend"`
	Record  Record `json:"record"`
}
