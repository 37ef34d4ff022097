package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/store"
	applogger "VolDesk/pkg/logger"
)

// envelope is the wire format on the ingestion topic: the record kind plus
// the record body itself.
type envelope struct {
	Kind    models.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// RecordIngestor consumes record envelopes from Kafka and commits them to
// the store. A malformed envelope is a permanent failure (no retry helps),
// so it is returned as an error and ends up in the DLQ.
type RecordIngestor struct {
	topic string
	store *store.Store
	log   *applogger.Logger
}

func NewRecordIngestor(topic string, st *store.Store, log *applogger.Logger) *RecordIngestor {
	return &RecordIngestor{topic: topic, store: st, log: log}
}

// Topic returns the ingestion topic name.
func (i *RecordIngestor) Topic() string { return i.topic }

// Handle decodes one envelope and writes its record.
func (i *RecordIngestor) Handle(ctx context.Context, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	rec, err := decodeRecord(env.Kind, env.Payload)
	if err != nil {
		return err
	}

	res, err := i.store.Write(ctx, rec)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", env.Kind, err)
	}

	i.log.Debug("record ingested",
		applogger.String("kind", string(env.Kind)),
		applogger.String("ticker", rec.TickerSymbol()),
		applogger.Uint64("seq", res.Seq))
	return nil
}

func decodeRecord(kind models.Kind, payload []byte) (models.Record, error) {
	switch kind {
	case models.KindPosition:
		var r models.Position
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return r, nil
	case models.KindAlert:
		var r models.Alert
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return r, nil
	case models.KindDmaPoint:
		var r models.DmaPoint
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return r, nil
	case models.KindIvPoint:
		var r models.IvPoint
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}
