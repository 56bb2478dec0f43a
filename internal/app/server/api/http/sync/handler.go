package sync

import (
	"context"
	"errors"

	"propsync/internal/domain/sync"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// RouteLimiter выдает ограничитель частоты запросов для маршрута
type RouteLimiter interface {
	Middleware(api huma.API, route string, perMinute int) func(huma.Context, func(huma.Context))
}

type Handler struct {
	service    sync.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
	limiter    RouteLimiter
	api        huma.API
}

// NewHandler создает обработчик. limiter может быть nil, тогда частота не ограничивается.
func NewHandler(service sync.Servicer, log *slog.Logger, middleware huma.Middlewares, limiter RouteLimiter) *Handler {
	return &Handler{
		service:    service,
		log:        log.With("component", "sync_handler"),
		middleware: middleware,
		limiter:    limiter,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	h.api = api
	huma.Register(api, h.deltaSyncOp(), h.deltaSync)
	huma.Register(api, h.fullSyncOp(), h.fullSync)
	huma.Register(api, h.batchSyncOp(), h.batchSync)
	huma.Register(api, h.statusOp(), h.status)
	huma.Register(api, h.resolveConflictsOp(), h.resolveConflicts)
	huma.Register(api, h.logsOp(), h.logs)
	huma.Register(api, h.metricsOp(), h.metrics)
	huma.Register(api, h.errorsOp(), h.recentErrors)
}

func (h *Handler) deltaSync(ctx context.Context, input *deltaSyncInput) (*deltaSyncOutput, error) {
	response, err := h.service.ProcessDeltaSync(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError("delta sync", err)
	}
	return &deltaSyncOutput{Body: *response}, nil
}

func (h *Handler) fullSync(ctx context.Context, input *fullSyncInput) (*fullSyncOutput, error) {
	response, err := h.service.ProcessFullSync(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError("full sync", err)
	}
	return &fullSyncOutput{Body: *response}, nil
}

func (h *Handler) batchSync(ctx context.Context, input *batchSyncInput) (*batchSyncOutput, error) {
	response, err := h.service.ProcessBatchSync(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError("batch sync", err)
	}
	return &batchSyncOutput{Body: *response}, nil
}

func (h *Handler) status(ctx context.Context, input *statusInput) (*statusOutput, error) {
	response, err := h.service.GetDeviceStatus(ctx, input.DeviceID)
	if err != nil {
		return nil, h.toHTTPError("device status", err)
	}
	return &statusOutput{Body: *response}, nil
}

func (h *Handler) resolveConflicts(ctx context.Context, input *resolveConflictsInput) (*resolveConflictsOutput, error) {
	response, err := h.service.ResolveConflicts(ctx, input.Body)
	if err != nil {
		return nil, h.toHTTPError("resolve conflicts", err)
	}
	return &resolveConflictsOutput{Body: *response}, nil
}

func (h *Handler) logs(ctx context.Context, input *logsInput) (*logsOutput, error) {
	response, err := h.service.GetLogs(ctx, sync.LogsRequest{
		DeviceID: input.DeviceID,
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		return nil, h.toHTTPError("sync logs", err)
	}
	return &logsOutput{Body: *response}, nil
}

func (h *Handler) metrics(ctx context.Context, input *metricsInput) (*metricsOutput, error) {
	response, err := h.service.GetDeviceMetrics(ctx, input.DeviceID)
	if err != nil {
		return nil, h.toHTTPError("device metrics", err)
	}
	return &metricsOutput{Body: *response}, nil
}

func (h *Handler) recentErrors(ctx context.Context, input *errorsInput) (*errorsOutput, error) {
	response, err := h.service.RecentErrors(ctx, input.Limit)
	if err != nil {
		return nil, h.toHTTPError("recent errors", err)
	}
	return &errorsOutput{Body: *response}, nil
}

// toHTTPError переводит ошибки домена в ответы huma
func (h *Handler) toHTTPError(op string, err error) error {
	switch {
	case errors.Is(err, sync.ErrInvalidRequest), sync.IsValidation(err):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, sync.ErrNoMetrics), errors.Is(err, sync.ErrLogNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, sync.ErrIncompatible):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, context.Canceled):
		return huma.Error503ServiceUnavailable("request canceled")
	default:
		h.log.Error("sync operation failed", "operation", op, "error", err)
		return huma.Error500InternalServerError("internal server error")
	}
}
