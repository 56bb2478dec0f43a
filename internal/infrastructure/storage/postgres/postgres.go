package postgres

import (
	"context"
	"errors"
	"fmt"

	"propsync/internal/app/server/config"
	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"
	"propsync/internal/infrastructure/migration"
	"propsync/internal/utils/retry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"
)

// Storage: авторитетное хранилище сервера, реализует sync.Store
type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New подключается к базе с повторами и накатывает миграции
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	pool, err := pgxpool.New(ctx, cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	policy := retry.Default()
	policy.MaxAttempts = cfg.DB.ConnectAttempts
	err = policy.Do(ctx, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			log.Warn("database is not ready", "error", err)
			return err
		}
		return nil
	}, nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	mg := migration.NewMigration(migration.Config{
		DatabaseURI: cfg.DB.DatabaseURI,
		Dir:         cfg.DB.Migrations,
	}, nil)
	if err := mg.Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Storage{
		pool: pool,
		log:  log.With("component", "postgres_store"),
	}, nil
}

func (s *Storage) Begin(ctx context.Context) (sync.Tx, error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return newTx(pgTx), nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// tx оборачивает pgx.Tx: вложенный Begin в pgx создает savepoint
type tx struct {
	recordRepository
	logRepository

	pgTx pgx.Tx
}

func newTx(pgTx pgx.Tx) *tx {
	return &tx{
		recordRepository: recordRepository{q: pgTx},
		logRepository:    logRepository{q: pgTx},
		pgTx:             pgTx,
	}
}

func (t *tx) Begin(ctx context.Context) (sync.Tx, error) {
	nested, err := t.pgTx.Begin(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil, sync.ErrTxDone
		}
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	return newTx(nested), nil
}

func (t *tx) Commit(ctx context.Context) error {
	err := t.pgTx.Commit(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return sync.ErrTxDone
	}
	return err
}

// Rollback после Commit ничего не делает
func (t *tx) Rollback(ctx context.Context) error {
	err := t.pgTx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// querier: общее подмножество pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	uniqueViolation         = "23505"
	integrityViolationClass = "23"
)

// mapError переводит ошибки ограничений PostgreSQL в ошибки домена
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == uniqueViolation:
		return fmt.Errorf("%w: %v", property.ErrAlreadyExists, err)
	case len(pgErr.Code) == 5 && pgErr.Code[:2] == integrityViolationClass:
		return fmt.Errorf("%w: %v", property.ErrConstraint, err)
	}
	return err
}
