package store

import (
	"context"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
)

// ListTickers returns the ticker inventory, ordered by symbol.
func (s *Store) ListTickers(ctx context.Context) ([]models.TickerMeta, error) {
	var out []models.TickerMeta
	err := s.sel.Do(ctx, func(ctx context.Context, b repository.Backend) error {
		var lerr error
		out, lerr = b.ListTickers(ctx)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RowCounts returns the per-kind row count on the active backend.
func (s *Store) RowCounts(ctx context.Context) (map[models.Kind]int64, error) {
	var out map[models.Kind]int64
	err := s.sel.Do(ctx, func(ctx context.Context, b repository.Backend) error {
		var cerr error
		out, cerr = b.RowCounts(ctx)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentBackendName reports which backend is serving: "remote" or "local".
func (s *Store) CurrentBackendName() string {
	return s.sel.CurrentName()
}
