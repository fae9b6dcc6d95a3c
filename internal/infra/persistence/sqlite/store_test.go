package sqlite

import (
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	var vessel domain.Vessel
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var e error
		vessel, e = tx.CreateVessel(domain.Vessel{Base: domain.Base{TenantID: "t1"}, Name: "FV-1", Capacity: 1000})
		if e != nil {
			return e
		}
		_, e = tx.CreateLot(domain.Lot{Base: domain.Base{TenantID: "t1"}, Code: "BLEND-2026-0001"})
		return e
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.GetVessel(vessel.ID)
	require.True(t, ok)
	require.Equal(t, "FV-1", got.Name)
	require.Equal(t, int64(1), got.Version)
	require.Len(t, reloaded.ListLots("t1"), 1)
	require.Equal(t, path, reloaded.Path())
}

func TestSQLiteStoreSingleWriterLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = NewStore(path, nil)
	require.ErrorIs(t, err, ErrLocked)
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, e := tx.CreateVessel(domain.Vessel{Name: "FV-1"}); e != nil {
			return e
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var rows int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows))
	require.Zero(t, rows)
	require.NoError(t, store.Close())
}

func TestSQLiteStoreAppliesPragmas(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	var mode string
	require.NoError(t, store.DB().QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestRetryOnBusy(t *testing.T) {
	attempts := 0
	err := retryOnBusy(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	attempts = 0
	permanent := errors.New("disk full")
	err = retryOnBusy(context.Background(), func() error {
		attempts++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, attempts)
}
