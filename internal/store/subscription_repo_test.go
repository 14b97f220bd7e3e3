package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"subtrack/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func strPtr(s string) *string { return &s }

func sampleRecord() *types.SubscriptionRecord {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	expiry := periodEnd.Add(30 * 24 * time.Hour)
	return &types.SubscriptionRecord{
		ID:            "sub_123",
		CustomerID:    "cus_456",
		CustomerName:  strPtr("Ada Lovelace"),
		CustomerEmail: strPtr("ada@example.com"),
		ProductName:   strPtr("Basic Plan"),
		PlanID:        strPtr("price_basic"),
		Status:        types.SubStatusActive,
		CreatedAt:     created,
		UpdatedAt:     periodEnd,
		ExpiryDate:    &expiry,
	}
}

// --- SubscriptionRepo Tests ---

func TestSubscriptionRepo_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Upsert(context.Background(), sampleRecord())
	require.NoError(t, err)
	db.AssertExpectations(t)

	// All ten columns travel as arguments, in schema order.
	args := db.Calls[0].Arguments.Get(2).([]any)
	require.Len(t, args, 10)
	assert.Equal(t, "sub_123", args[0])
	assert.Equal(t, "cus_456", args[1])
	assert.Equal(t, types.SubStatusActive, args[6])
}

func TestSubscriptionRepo_Upsert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Upsert(context.Background(), sampleRecord())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	want := sampleRecord()
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*(dest[0].(*string)) = want.ID
				*(dest[1].(*string)) = want.CustomerID
				*(dest[2].(**string)) = want.CustomerName
				*(dest[3].(**string)) = want.CustomerEmail
				*(dest[4].(**string)) = want.ProductName
				*(dest[5].(**string)) = want.PlanID
				*(dest[6].(*types.SubscriptionStatus)) = want.Status
				*(dest[7].(*time.Time)) = want.CreatedAt
				*(dest[8].(*time.Time)) = want.UpdatedAt
				*(dest[9].(**time.Time)) = want.ExpiryDate
				return nil
			},
		})

	got, err := repo.GetByID(context.Background(), "sub_123")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSubscriptionRepo_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "sub_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundResource, appErr.Code)
}

func TestSubscriptionRepo_CountAll(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*(dest[0].(*int64)) = 42
				return nil
			},
		})

	count, err := repo.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestEnsureSchema(t *testing.T) {
	db := new(mockDBTX)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, EnsureSchema(context.Background(), db))

	sql := db.Calls[0].Arguments.String(1)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS subscriptions")
	assert.Contains(t, sql, "expiry_date    TIMESTAMPTZ")
}

func TestEnsureSchema_DBError(t *testing.T) {
	db := new(mockDBTX)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied"))

	err := EnsureSchema(context.Background(), db)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
