//go:build integration

package postgres

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"propsync/internal/app/server/config"
	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/exp/slog"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "postgres:16-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "sync",
			"POSTGRES_PASSWORD": "sync",
			"POSTGRES_DB":       "sync",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.Config{DB: config.DB{
		Driver:          config.DriverPostgres,
		DatabaseURI:     fmt.Sprintf("postgres://sync:sync@%s:%s/sync?sslmode=disable", host, port.Port()),
		ConnectAttempts: 5,
	}}
	store, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage_Integration(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	newRecord := func(id, writer string) *property.Record {
		return &property.Record{
			ID:           id,
			Payload:      property.Payload{"parcel_id": id, "amount": 100.0},
			Derived:      &property.Derived{WaterScore: 3},
			LastModified: base.Add(time.Duration(len(id)) * time.Second),
			CreatedAt:    base,
			LastWriter:   writer,
		}
	}

	t.Run("savepoints", func(t *testing.T) {
		tx, err := store.Begin(ctx)
		require.NoError(t, err)

		sp1, err := tx.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, sp1.Create(ctx, newRecord("a", "device-1")))
		require.NoError(t, sp1.Commit(ctx))
		require.NoError(t, sp1.Rollback(ctx))

		sp2, err := tx.Begin(ctx)
		require.NoError(t, err)
		err = sp2.Create(ctx, newRecord("a", "device-2"))
		assert.ErrorIs(t, err, property.ErrAlreadyExists)
		require.NoError(t, sp2.Rollback(ctx))

		// транзакция снова пригодна после отката savepoint
		require.NoError(t, tx.Create(ctx, newRecord("bb", "")))
		require.NoError(t, tx.Commit(ctx))
		assert.ErrorIs(t, tx.Commit(ctx), sync.ErrTxDone)
	})

	t.Run("queries", func(t *testing.T) {
		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()

		rec, err := tx.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 100.0, rec.Payload["amount"])
		require.NotNil(t, rec.Derived)
		assert.Equal(t, 3.0, rec.Derived.WaterScore)

		changed, err := tx.ListChangedSince(ctx, property.ChangeCursor{Since: base}, "device-1", 0)
		require.NoError(t, err)
		require.Len(t, changed, 1)
		assert.Equal(t, "bb", changed[0].ID)

		many, err := tx.GetMany(ctx, []string{"a", "bb", "zz"})
		require.NoError(t, err)
		assert.Len(t, many, 2)

		n, err := tx.CountActiveAfter(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = tx.Get(ctx, "zz")
		assert.ErrorIs(t, err, property.ErrNotFound)
	})

	t.Run("logs", func(t *testing.T) {
		tx, err := store.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()

		done := base.Add(time.Second)
		entry := &sync.SyncLog{
			ID: "l1", DeviceID: "device-1", Operation: sync.KindDeltaSync, Status: sync.StatusPending,
			StartedAt: base, AlgorithmValidationPassed: true,
		}
		require.NoError(t, tx.InsertLog(ctx, entry))
		entry.Status = sync.StatusSuccess
		entry.CompletedAt = &done
		require.NoError(t, tx.UpdateLog(ctx, entry))

		last, err := tx.LastSuccessfulLog(ctx, "device-1")
		require.NoError(t, err)
		assert.Equal(t, "l1", last.ID)
		assert.True(t, last.CompletedAt.Equal(done))

		logs, total, err := tx.ListLogs(ctx, sync.LogFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, logs, 1)
	})
}
