package sync

import (
	"net/http"

	"propsync/internal/app/server/api/http/middleware/ratelimit"

	"github.com/danielgtaylor/huma/v2"
)

// middlewareFor добавляет ограничение частоты маршрута к общим middleware
func (h *Handler) middlewareFor(route string, perMinute int) huma.Middlewares {
	mws := make(huma.Middlewares, 0, len(h.middleware)+1)
	mws = append(mws, h.middleware...)
	if h.limiter != nil {
		mws = append(mws, h.limiter.Middleware(h.api, route, perMinute))
	}
	return mws
}

func (h *Handler) deltaSyncOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-delta",
		Method:      http.MethodPost,
		Path:        "/api/sync/delta",
		Summary:     "Дельта-синхронизация",
		Description: "Применяет изменения устройства, обнаруживает конфликты и возвращает серверные изменения с момента последней синхронизации",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("delta", ratelimit.DeltaPerMinute),
	}
}

func (h *Handler) fullSyncOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-full",
		Method:      http.MethodPost,
		Path:        "/api/sync/full",
		Summary:     "Полная синхронизация",
		Description: "Возвращает все активные записи и, по запросу, идентификаторы удаленных",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("full", ratelimit.FullPerMinute),
	}
}

func (h *Handler) batchSyncOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-batch",
		Method:      http.MethodPost,
		Path:        "/api/sync/batch",
		Summary:     "Пакетная синхронизация",
		Description: "Возвращает страницу активных записей по курсору идентификатора",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("batch", ratelimit.BatchPerMinute),
	}
}

func (h *Handler) statusOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-status",
		Method:      http.MethodGet,
		Path:        "/api/sync/status",
		Summary:     "Статус синхронизации устройства",
		Description: "Возвращает время последней успешной синхронизации, число ожидающих изменений и неразрешенных конфликтов",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("status", ratelimit.StatusPerMinute),
	}
}

func (h *Handler) resolveConflictsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-resolve-conflicts",
		Method:      http.MethodPost,
		Path:        "/api/sync/resolve-conflicts",
		Summary:     "Разрешить конфликты",
		Description: "Применяет выбранные стратегии разрешения конфликтов",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("resolve", ratelimit.ResolvePerMinute),
	}
}

func (h *Handler) logsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-logs",
		Method:      http.MethodGet,
		Path:        "/api/sync/logs",
		Summary:     "Журнал синхронизации",
		Description: "Возвращает записи журнала синхронизации постранично, новые первыми",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("logs", ratelimit.LogsPerMinute),
	}
}

func (h *Handler) metricsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-metrics",
		Method:      http.MethodGet,
		Path:        "/api/sync/metrics/{device_id}",
		Summary:     "Метрики синхронизации устройства",
		Description: "Возвращает показатели последней синхронизации и сводку за последние семь дней",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("metrics", ratelimit.MetricsPerMinute),
	}
}

func (h *Handler) errorsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-errors",
		Method:      http.MethodGet,
		Path:        "/api/sync/errors",
		Summary:     "Последние ошибки синхронизации",
		Tags:        []string{"sync"},
		Middlewares: h.middlewareFor("errors", ratelimit.ErrorsPerMinute),
	}
}
