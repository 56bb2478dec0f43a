// Package sqlite: локальное хранилище устройства на SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"
	"propsync/internal/infrastructure/migration"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"
)

const MemoryPath = ":memory:"

// Store реализует sync.Store поверх одного соединения SQLite
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open открывает (или создает) базу и накатывает миграции
func Open(path string, log *slog.Logger) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// одно соединение: in-memory база живет в нем, а savepoint'ы привязаны к соединению
	db.SetMaxOpenConns(1)

	if err := migration.UpSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	log.Info("sqlite storage ready", "path", path)
	return &Store{
		db:  db,
		log: log.With("component", "sqlite_store"),
	}, nil
}

func (s *Store) Begin(ctx context.Context) (sync.Tx, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	seq := 0
	return newTx(sqlTx, "", &seq, s.log), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// tx: транзакция верхнего уровня (name == "") или savepoint внутри нее
type tx struct {
	recordRepository
	logRepository

	sqlTx *sql.Tx
	name  string
	seq   *int
	done  bool
	log   *slog.Logger
}

func newTx(sqlTx *sql.Tx, name string, seq *int, log *slog.Logger) *tx {
	return &tx{
		recordRepository: recordRepository{q: sqlTx},
		logRepository:    logRepository{q: sqlTx},
		sqlTx:            sqlTx,
		name:             name,
		seq:              seq,
		log:              log,
	}
}

func (t *tx) Begin(ctx context.Context) (sync.Tx, error) {
	if t.done {
		return nil, sync.ErrTxDone
	}
	*t.seq++
	name := fmt.Sprintf("sp_%d", *t.seq)
	if _, err := t.sqlTx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	return newTx(t.sqlTx, name, t.seq, t.log), nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return sync.ErrTxDone
	}
	t.done = true

	if t.name == "" {
		return t.sqlTx.Commit()
	}
	if _, err := t.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", t.name, err)
	}
	return nil
}

// Rollback после Commit ничего не делает
func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true

	if t.name == "" {
		err := t.sqlTx.Rollback()
		if errors.Is(err, sql.ErrTxDone) {
			return nil
		}
		return err
	}
	if _, err := t.sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.name); err != nil {
		t.log.Error("failed to rollback savepoint", "savepoint", t.name, "error", err)
		return fmt.Errorf("rollback savepoint %s: %w", t.name, err)
	}
	if _, err := t.sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", t.name, err)
	}
	return nil
}

// querier: общее подмножество *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMicro(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicro(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// mapError переводит ошибки ограничений SQLite в ошибки домена
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch {
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %v", property.ErrAlreadyExists, err)
	case sqliteErr.Code == sqlite3.ErrConstraint:
		return fmt.Errorf("%w: %v", property.ErrConstraint, err)
	}
	return err
}
