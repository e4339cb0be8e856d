package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeRepository_Insert_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mockTx := &mockTxQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	repo := NewLikeRepositoryWithPool(&mockPool{})
	inserted, err := repo.Insert(context.Background(), mockTx, 42, 10)

	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Contains(t, capturedSQL, "INSERT INTO likes")
	assert.Contains(t, capturedSQL, "ON CONFLICT (user_id, product_id) DO NOTHING")
	assert.Equal(t, []any{int64(42), int64(10)}, capturedArgs)
}

func TestLikeRepository_Insert_Duplicate(t *testing.T) {
	mockTx := &mockTxQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		},
	}

	repo := NewLikeRepositoryWithPool(&mockPool{})
	inserted, err := repo.Insert(context.Background(), mockTx, 42, 10)

	require.NoError(t, err, "a duplicate like is reported, not raised")
	assert.False(t, inserted)
}

func TestLikeRepository_Insert_DatabaseError(t *testing.T) {
	dbErr := errors.New("database connection failed")
	mockTx := &mockTxQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, dbErr
		},
	}

	repo := NewLikeRepositoryWithPool(&mockPool{})
	inserted, err := repo.Insert(context.Background(), mockTx, 42, 10)

	require.Error(t, err)
	assert.False(t, inserted)
	assert.Contains(t, err.Error(), "insert like")
}

func TestLikeRepository_Delete_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mockTx := &mockTxQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	}

	repo := NewLikeRepositoryWithPool(&mockPool{})
	deleted, err := repo.Delete(context.Background(), mockTx, 42, 10)

	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Contains(t, capturedSQL, "DELETE FROM likes")
	assert.Equal(t, []any{int64(42), int64(10)}, capturedArgs)
}

func TestLikeRepository_Delete_MissingRow(t *testing.T) {
	mockTx := &mockTxQuerier{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 0"), nil
		},
	}

	repo := NewLikeRepositoryWithPool(&mockPool{})
	deleted, err := repo.Delete(context.Background(), mockTx, 42, 10)

	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLikeRepository_Exists_True(t *testing.T) {
	var capturedArgs []any
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			assert.Contains(t, sql, "SELECT EXISTS")
			capturedArgs = args
			return &mockRow{scanFn: func(dest ...any) error {
				*(dest[0].(*bool)) = true
				return nil
			}}
		},
	}

	repo := NewLikeRepositoryWithPool(mock)
	exists, err := repo.Exists(context.Background(), 42, 10)

	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []any{int64(42), int64(10)}, capturedArgs)
}

func TestLikeRepository_Exists_DatabaseError(t *testing.T) {
	dbErr := errors.New("database connection failed")
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFn: func(dest ...any) error { return dbErr }}
		},
	}

	repo := NewLikeRepositoryWithPool(mock)
	exists, err := repo.Exists(context.Background(), 42, 10)

	require.Error(t, err)
	assert.False(t, exists)
	assert.Contains(t, err.Error(), "check like exists")
}

func TestLikeRepository_CountByProduct_Success(t *testing.T) {
	var capturedArgs []any
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			assert.Contains(t, sql, "COUNT(*)")
			capturedArgs = args
			return &mockRow{scanFn: func(dest ...any) error {
				*(dest[0].(*int64)) = 37
				return nil
			}}
		},
	}

	repo := NewLikeRepositoryWithPool(mock)
	count, err := repo.CountByProduct(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, int64(37), count)
	assert.Equal(t, []any{int64(10)}, capturedArgs)
}

// TestNewLikeRepository_Production tests the production constructor.
// We can't fully test it without a real database, but we can verify
// it creates a repository with the pool set.
func TestNewLikeRepository_Production(t *testing.T) {
	repo := NewLikeRepository(nil)

	assert.NotNil(t, repo)
}
