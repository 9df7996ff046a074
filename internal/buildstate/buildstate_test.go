package buildstate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/order-reconciler/internal/domain"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func sampleState() *domain.BuildState {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	s := domain.NewBuildState("run-1", now)
	s.Phase = domain.PhasePlatformB
	s.RowCursor = 1502
	s.OutRow = 1320
	s.WrittenCount = 1318
	s.ExcludedCount = 182
	s.LastOrderKey = "PlatformB||5001"
	s.ExcludeOrder("5002")
	return s
}

func TestRepositories_RoundTrip(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	for name, repo := range map[string]Repository{
		"memory":   NewMemoryRepository(),
		"redis":    NewRedisRepository(client),
		"dynamodb": NewDynamoRepository(newFakeDynamo(), "reconciler"),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got, "absent state means no build in progress")

			want := sampleState()
			require.NoError(t, repo.Save(ctx, want))

			got, err = repo.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			require.NoError(t, repo.Delete(ctx))
			got, err = repo.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestRedisRepository_StoresJSONUnderNamespacedKey(t *testing.T) {
	mr, client := setupRedis(t)
	require.NoError(t, NewRedisRepository(client).Save(context.Background(), sampleState()))

	raw, err := mr.Get(StateKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"phase":"platformB"`)
	assert.Contains(t, raw, `"lastOrderKey":"PlatformB||5001"`)
}

func TestRedisRepository_Corrupt(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	repo := NewRedisRepository(client)

	mr.Set(StateKey, "{not json")
	_, err := repo.Load(ctx)
	assert.True(t, errors.Is(err, ErrCorruptState))

	mr.Set(StateKey, `{"phase":"done","rowCursor":2,"outRow":2}`)
	_, err = repo.Load(ctx)
	assert.True(t, errors.Is(err, ErrCorruptState))

	mr.Set(StateKey, `{"phase":"platformA","rowCursor":0,"outRow":2}`)
	_, err = repo.Load(ctx)
	assert.True(t, errors.Is(err, ErrCorruptState))
}

func TestOrderIndexes(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	for name, idx := range map[string]OrderIndex{
		"memory":   NewMemoryOrderIndex(),
		"redis":    NewRedisOrderIndex(client),
		"dynamodb": NewDynamoOrderIndex(newFakeDynamo(), "reconciler"),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := idx.Contains(ctx, []string{"PlatformA||1"})
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, idx.Add(ctx, []string{"PlatformA||1", "PlatformA||2"}))
			require.NoError(t, idx.Add(ctx, nil))

			got, err = idx.Contains(ctx, []string{"PlatformA||1", "PlatformA||3", "PlatformA||2"})
			require.NoError(t, err)
			assert.Equal(t, map[string]bool{"PlatformA||1": true, "PlatformA||2": true}, got)

			got, err = idx.Contains(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, idx.Reset(ctx))
			got, err = idx.Contains(ctx, []string{"PlatformA||1"})
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestPostgresRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`SELECT value FROM app_properties WHERE key = \$1`).
		WithArgs(StateKey).
		WillReturnError(sql.ErrNoRows)
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectExec(`INSERT INTO app_properties`).
		WithArgs(StateKey, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Save(ctx, sampleState()))

	mock.ExpectQuery(`SELECT value FROM app_properties`).
		WithArgs(StateKey).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).
			AddRow(`{"runId":"r","phase":"platformA","rowCursor":1502,"outRow":900}`))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PhasePlatformA, got.Phase)
	assert.Equal(t, 1502, got.RowCursor)
	assert.Equal(t, 900, got.OutRow)

	mock.ExpectExec(`DELETE FROM app_properties WHERE key = \$1`).
		WithArgs(StateKey).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrderIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	idx := NewPostgresOrderIndex(db)

	mock.ExpectQuery(`SELECT order_key FROM cleanmaster_seen_orders WHERE order_key = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_key"}).AddRow("PlatformA||1"))
	got, err := idx.Contains(ctx, []string{"PlatformA||1", "PlatformA||2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"PlatformA||1": true}, got)

	mock.ExpectExec(`INSERT INTO cleanmaster_seen_orders`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, idx.Add(ctx, []string{"PlatformA||1", "PlatformA||2"}))

	mock.ExpectExec(`TRUNCATE cleanmaster_seen_orders`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, idx.Reset(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen(t *testing.T) {
	_, client := setupRedis(t)

	repo, idx, err := Open(BackendRedis, Stores{Redis: client})
	require.NoError(t, err)
	assert.IsType(t, &RedisRepository{}, repo)
	assert.IsType(t, &RedisOrderIndex{}, idx)

	repo, _, err = Open(BackendMemory, Stores{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepository{}, repo)

	repo, idx, err = Open(BackendDynamoDB, Stores{Dynamo: newFakeDynamo(), DynamoTable: "reconciler"})
	require.NoError(t, err)
	assert.IsType(t, &DynamoRepository{}, repo)
	assert.IsType(t, &DynamoOrderIndex{}, idx)

	_, _, err = Open(BackendPostgres, Stores{})
	assert.Error(t, err)
	_, _, err = Open(BackendDynamoDB, Stores{Dynamo: newFakeDynamo()})
	assert.Error(t, err)
	_, _, err = Open("etcd", Stores{})
	assert.Error(t, err)
}
