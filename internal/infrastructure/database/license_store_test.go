package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensedesk/internal/domain"
	"licensedesk/internal/infrastructure/crypto"
)

const testEncKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func openTestStore(t *testing.T, enc *crypto.Encryptor) (*LicenseStore, *DB) {
	t.Helper()

	db, err := NewConnection(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "licenses.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.EnsureSchema())
	return NewLicenseStore(db, enc, slog.New(slog.DiscardHandler)), db
}

func record(key string, createdAt time.Time) *domain.LicenseRecord {
	return &domain.LicenseRecord{Key: key, CreatedAt: createdAt}
}

func TestInsertAllAssignsSequentialIDs(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []*domain.LicenseRecord{
		record("AAAAA-AAAAA-AAAAA-AAAA1", now),
		record("AAAAA-AAAAA-AAAAA-AAAA2", now),
	}
	require.NoError(t, store.InsertAll(ctx, recs))

	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, int64(2), recs[1].ID)
}

func TestExists(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.InsertAll(ctx, []*domain.LicenseRecord{
		record("AAAAA-AAAAA-AAAAA-AAAA1", time.Now().UTC()),
	}))

	taken, err := store.Exists(ctx, "AAAAA-AAAAA-AAAAA-AAAA1")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.Exists(ctx, "BBBBB-BBBBB-BBBBB-BBBB1")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestInsertAllRollsBackWholeBatchOnDuplicate(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.InsertAll(ctx, []*domain.LicenseRecord{
		record("AAAAA-AAAAA-AAAAA-AAAA1", time.Now().UTC()),
	}))

	// Второй элемент батча бьется об UNIQUE(key); первый тоже не должен выжить
	err := store.InsertAll(ctx, []*domain.LicenseRecord{
		record("CCCCC-CCCCC-CCCCC-CCCC1", time.Now().UTC()),
		record("AAAAA-AAAAA-AAAAA-AAAA1", time.Now().UTC()),
	})
	var pErr *domain.PersistenceError
	require.ErrorAs(t, err, &pErr)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "failed batch must leave the store untouched")

	taken, err := store.Exists(ctx, "CCCCC-CCCCC-CCCCC-CCCC1")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestListAllOrdersByCreatedAtDescending(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Вставляем нарочно не по порядку
	require.NoError(t, store.InsertAll(ctx, []*domain.LicenseRecord{
		record("AAAAA-AAAAA-AAAAA-AAAA2", base.Add(2*time.Hour)),
		record("AAAAA-AAAAA-AAAAA-AAAA1", base.Add(1*time.Hour)),
		record("AAAAA-AAAAA-AAAAA-AAAA3", base.Add(3*time.Hour)),
	}))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "AAAAA-AAAAA-AAAAA-AAAA3", all[0].Key)
	assert.Equal(t, "AAAAA-AAAAA-AAAAA-AAAA2", all[1].Key)
	assert.Equal(t, "AAAAA-AAAAA-AAAAA-AAAA1", all[2].Key)

	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt))
	}
}

func TestHolderRoundTrip(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	rec := record("AAAAA-AAAAA-AAAAA-AAAA1", time.Now().UTC())
	rec.Holder = &domain.Holder{Name: "Grace Hopper", Phone: "555 123 4567"}
	require.NoError(t, store.InsertAll(ctx, []*domain.LicenseRecord{rec}))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].Holder)
	assert.Equal(t, "Grace Hopper", all[0].Holder.Name)
	assert.Equal(t, "555 123 4567", all[0].Holder.Phone)
}

func TestHolderPhoneEncryptedAtRest(t *testing.T) {
	enc, err := crypto.NewEncryptor(testEncKey)
	require.NoError(t, err)
	store, db := openTestStore(t, enc)
	ctx := context.Background()

	rec := record("AAAAA-AAAAA-AAAAA-AAAA1", time.Now().UTC())
	rec.Holder = &domain.Holder{Name: "Grace Hopper", Phone: "555 123 4567"}
	require.NoError(t, store.InsertAll(ctx, []*domain.LicenseRecord{rec}))

	// В самой колонке открытого номера быть не должно
	var stored string
	err = db.QueryRowContext(ctx, `SELECT holder_phone_enc FROM licenses`).Scan(&stored)
	require.NoError(t, err)
	assert.False(t, strings.Contains(stored, "555 123 4567"))

	// А чтение через стор отдает расшифрованный
	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "555 123 4567", all[0].Holder.Phone)
}

func TestInsertAllEmptyBatchIsNoop(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.InsertAll(ctx, nil))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebind(t *testing.T) {
	sqlite := &DB{driver: DriverSQLite}
	pg := &DB{driver: DriverPostgres}

	q := `INSERT INTO licenses (key, created_at) VALUES ($1, $2)`
	assert.Equal(t, `INSERT INTO licenses (key, created_at) VALUES (?, ?)`, sqlite.Rebind(q))
	assert.Equal(t, q, pg.Rebind(q))
}
