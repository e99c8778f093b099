package kv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, ""), mock
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM "kv_store" WHERE key = $1`)).
		WithArgs("waitlist_count").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"count":4}`)))

	v, err := store.Get(ctx, "waitlist_count")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":4}`, string(v))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM "kv_store" WHERE key = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSet(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO "kv_store" .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("k", `{"a":1}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(context.Background(), "k", []byte(`{"a":1}`)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetError(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO "kv_store"`).
		WithArgs("k", `{}`).
		WillReturnError(errors.New("connection reset"))

	err := store.Set(context.Background(), "k", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresSetNX(t *testing.T) {
	store, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO "kv_store" .* ON CONFLICT \(key\) DO NOTHING`).
		WithArgs("k", `{}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "kv_store" .* ON CONFLICT \(key\) DO NOTHING`).
		WithArgs("k", `{}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.SetNX(ctx, "k", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "k", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByPrefix(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM "kv_store" WHERE key LIKE $1`)).
		WithArgs(`waitlist\_user\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("waitlist_user_a@x.com", []byte(`{"n":1}`)).
			AddRow("waitlist_user_b@x.com", []byte(`{"n":2}`)))

	items, err := store.GetByPrefix(context.Background(), "waitlist_user_")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "waitlist_user_b@x.com", items[1].Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountByPrefix(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "kv_store" WHERE key LIKE $1`)).
		WithArgs(`waitlist\_user\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountByPrefix(context.Background(), "waitlist_user_")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "kv_store" WHERE key = $1`)).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), "k"))
	require.NoError(t, mock.ExpectationsWereMet())
}
