// GET  /api/v1/health                 # Состояние сервиса (публичный)
// POST /api/sync/delta                # Дельта-синхронизация (auth)
// POST /api/sync/full                 # Полная синхронизация (auth)
// POST /api/sync/batch                # Пакетная выгрузка по курсору (auth)
// GET  /api/sync/status               # Статус устройства (auth)
// POST /api/sync/resolve-conflicts    # Разрешение конфликтов (auth)
// GET  /api/sync/logs                 # Журнал синхронизации (auth)
// GET  /api/sync/metrics/{device_id}  # Метрики устройства (auth)
// GET  /api/sync/errors               # Последние ошибки (auth)

package api

import (
	"context"
	"fmt"
	"time"

	"propsync/internal/app/server/api/http/health"
	"propsync/internal/app/server/api/http/middleware"
	"propsync/internal/app/server/api/http/middleware/auth"
	"propsync/internal/app/server/api/http/middleware/logger"
	"propsync/internal/app/server/api/http/middleware/ratelimit"
	syncAPI "propsync/internal/app/server/api/http/sync"
	"propsync/internal/app/server/config"
	"propsync/internal/domain/scoring"
	"propsync/internal/domain/sync"
	"propsync/internal/utils/errtrack"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

const sweepInterval = time.Minute

// Store описывает хранилище, нужное API: транзакции синхронизации и проверка доступности
type Store interface {
	sync.Store
	health.Pinger
}

type Handlers struct {
	Health *health.Handler
	Sync   *syncAPI.Handler
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register.
// Очистка ограничителя частоты работает до отмены ctx.
func New(ctx context.Context, store Store, cfg *config.Config, log *slog.Logger) (*chi.Mux, error) {
	mux := chi.NewMux()

	humaConfig := huma.DefaultConfig("Propsync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, humaConfig)

	h, err := handlers(ctx, store, cfg, log)
	if err != nil {
		return nil, err
	}
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)

	return mux, nil
}

func handlers(ctx context.Context, store Store, cfg *config.Config, log *slog.Logger) (*Handlers, error) {
	calculator := scoring.NewCalculator()
	validator, err := scoring.NewValidator(calculator, scoring.ValidatorConfig{
		AlgorithmVersions:    cfg.Sync.AlgorithmVersions,
		AppVersionConstraint: cfg.Sync.AppVersionConstraint,
		Tolerance:            cfg.Sync.ScoreTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("compatibility gate: %w", err)
	}

	tracker := errtrack.New(cfg.Sync.ErrorHistorySize)
	syncService := sync.NewService(store, validator, calculator, tracker, log, &sync.ServiceConfig{
		MaxServerChanges: cfg.Sync.MaxServerChanges,
	})

	authMW := auth.New(cfg.Server.APITokenHash, log)
	if !authMW.Enabled() {
		log.Warn("API_TOKEN_HASH is empty, sync endpoints are not protected")
	}
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer()

	var limiter syncAPI.RouteLimiter
	if cfg.Server.RateLimitEnabled {
		l := ratelimit.New(log)
		go l.Run(ctx, sweepInterval)
		limiter = l
	}

	middlewares.Add(loggerMW.Middleware())
	healthHandler := health.NewHandler(store, log, middlewares.GetAllAndClear())

	middlewares.Add(loggerMW.Middleware())
	middlewares.Add(authMW.Middleware())
	syncHandler := syncAPI.NewHandler(syncService, log, middlewares.GetAllAndClear(), limiter)

	return &Handlers{
		Health: healthHandler,
		Sync:   syncHandler,
	}, nil
}
