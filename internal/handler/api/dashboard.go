package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/store"
	"VolDesk/pkg/cache"
	xhttp "VolDesk/pkg/http"
	xlogger "VolDesk/pkg/logger"
)

// DashboardHandler serves the dashboard's read endpoints and the ingestion
// endpoints that feed them. Reads go through an optional read-through cache;
// every successful write invalidates the written kind's cached responses.
type DashboardHandler struct {
	logger   *xlogger.Logger
	store    *store.Store
	cache    cache.Service
	cacheTTL time.Duration
}

func NewDashboardHandler(logger *xlogger.Logger, st *store.Store) *DashboardHandler {
	return &DashboardHandler{logger: logger, store: st}
}

// SetCache enables the read-through response cache.
func (h *DashboardHandler) SetCache(c cache.Service, ttl time.Duration) {
	h.cache = c
	h.cacheTTL = ttl
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	e.GET("/positions", h.ListPositions)
	e.GET("/alerts", h.ListAlerts)
	e.GET("/dma-data", h.ListDma)
	e.GET("/dma-data/:ticker", h.ListDmaByTicker)
	e.GET("/iv-data", h.ListIv)
	e.GET("/iv-data/:ticker", h.ListIvByTicker)
	e.GET("/debug/tickers", h.DebugTickers)

	e.POST("/positions", h.UpsertPosition)
	e.POST("/alerts", h.UpsertAlert)
	e.POST("/dma-data", h.UpsertDma)
	e.POST("/iv-data", h.UpsertIv)
}

func (h *DashboardHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{
		"status":  "ok",
		"backend": h.store.CurrentBackendName(),
	})
}

func (h *DashboardHandler) ListPositions(c echo.Context) error {
	return h.listRecords(c, models.KindPosition, h.rangeQuery(c, models.KindPosition))
}

func (h *DashboardHandler) ListAlerts(c echo.Context) error {
	return h.listRecords(c, models.KindAlert, h.rangeQuery(c, models.KindAlert))
}

func (h *DashboardHandler) ListDma(c echo.Context) error {
	q := h.rangeQuery(c, models.KindDmaPoint)
	q.Window = xhttp.ParseIntDefault(c.QueryParam("window"), 0)
	return h.listRecords(c, models.KindDmaPoint, q)
}

func (h *DashboardHandler) ListDmaByTicker(c echo.Context) error {
	q := h.rangeQuery(c, models.KindDmaPoint)
	q.Ticker = c.Param("ticker")
	q.Window = xhttp.ParseIntDefault(c.QueryParam("window"), 0)
	return h.listRecords(c, models.KindDmaPoint, q)
}

func (h *DashboardHandler) ListIv(c echo.Context) error {
	q := h.rangeQuery(c, models.KindIvPoint)
	q.Expiry = c.QueryParam("expiry")
	q.Strike = xhttp.ParseFloatDefault(c.QueryParam("strike"), 0)
	return h.listRecords(c, models.KindIvPoint, q)
}

func (h *DashboardHandler) ListIvByTicker(c echo.Context) error {
	q := h.rangeQuery(c, models.KindIvPoint)
	q.Ticker = c.Param("ticker")
	q.Expiry = c.QueryParam("expiry")
	q.Strike = xhttp.ParseFloatDefault(c.QueryParam("strike"), 0)
	return h.listRecords(c, models.KindIvPoint, q)
}

// DebugTickers reports the ticker inventory, the active backend, and
// per-kind row counts. Never cached.
func (h *DashboardHandler) DebugTickers(c echo.Context) error {
	ctx := c.Request().Context()

	tickers, err := h.store.ListTickers(ctx)
	if err != nil {
		return h.storeError(c, "debug tickers", err)
	}
	counts, err := h.store.RowCounts(ctx)
	if err != nil {
		return h.storeError(c, "debug row counts", err)
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"backend":    h.store.CurrentBackendName(),
		"tickers":    tickers,
		"row_counts": counts,
	})
}

func (h *DashboardHandler) UpsertPosition(c echo.Context) error {
	req := &models.Position{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.writeRecord(c, *req)
}

func (h *DashboardHandler) UpsertAlert(c echo.Context) error {
	req := &models.Alert{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.writeRecord(c, *req)
}

func (h *DashboardHandler) UpsertDma(c echo.Context) error {
	req := &models.DmaPoint{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.writeRecord(c, *req)
}

func (h *DashboardHandler) UpsertIv(c echo.Context) error {
	req := &models.IvPoint{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.writeRecord(c, *req)
}

func (h *DashboardHandler) rangeQuery(c echo.Context, kind models.Kind) models.Query {
	return models.Query{
		Kind:   kind,
		Ticker: c.QueryParam("ticker"),
		From:   xhttp.ParseTimeDefault(c.QueryParam("from"), time.Time{}),
		To:     xhttp.ParseTimeDefault(c.QueryParam("to"), time.Time{}),
		Limit:  xhttp.ParseIntDefault(c.QueryParam("limit"), 0),
	}
}

func (h *DashboardHandler) listRecords(c echo.Context, kind models.Kind, q models.Query) error {
	ctx := c.Request().Context()

	cacheKey := cache.GenerateKeyWithParams(string(kind),
		q.Ticker, q.From.Unix(), q.To.Unix(), q.Window, q.Expiry, q.Strike, q.Limit)
	if h.cache != nil {
		var cached string
		if err := h.cache.Get(ctx, cacheKey, &cached); err == nil {
			h.logger.Debug("cache hit", xlogger.String("key", cacheKey))
			return c.JSONBlob(http.StatusOK, []byte(cached))
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("cache get failed", xlogger.Error(err))
		}
	}

	rows, err := h.store.Query(ctx, q)
	if err != nil {
		return h.storeError(c, "query "+string(kind), err)
	}
	if rows == nil {
		rows = []models.Record{}
	}

	if h.cache != nil {
		if body, err := encodeListResponse(rows); err == nil {
			if err := h.cache.Set(ctx, cacheKey, body, h.cacheTTL); err != nil {
				h.logger.Warn("cache set failed", xlogger.Error(err))
			}
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DashboardHandler) writeRecord(c echo.Context, rec models.Record) error {
	ctx := c.Request().Context()

	res, err := h.store.Write(ctx, rec)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return xhttp.BadRequestResponse(c, verr.Violations)
		}
		return h.storeError(c, "write "+string(rec.Kind()), err)
	}

	if h.cache != nil {
		if err := h.cache.DeleteByPattern(ctx, cache.BuildPattern(string(rec.Kind()))); err != nil {
			h.logger.Warn("cache invalidation failed", xlogger.Error(err))
		}
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *DashboardHandler) storeError(c echo.Context, op string, err error) error {
	h.logger.Error(op+" failed", xlogger.Error(err))
	if errors.Is(err, models.ErrStorageUnavailable) {
		return xhttp.ServiceUnavailableResponse(c, "storage unavailable")
	}
	return xhttp.AppErrorResponse(c, err)
}

func encodeListResponse(rows []models.Record) (string, error) {
	body, err := json.Marshal(&xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    &xhttp.ListDataResponse{Rows: rows, Total: int64(len(rows))},
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}
