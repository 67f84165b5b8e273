package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
)

var repoNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func accountRow(id, apiKey string) []any {
	var key any
	if apiKey != "" {
		key = strPtr(apiKey)
	}
	return []any{
		id, "auth0|" + id, id + "@example.com", "Ada", "Lovelace", "", "user",
		"pro", "active", repoNow, nil, "pay_1",
		int64(12), int64(340), int64(3), int64(90), repoNow,
		key, true, int64(4), repoNow, repoNow, repoNow,
	}
}

func TestAccountRepository_Create_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{Email: "a@example.com"}, repoNow)

	err := repo.Create(context.Background(), &account)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "INSERT INTO accounts")
	assert.Contains(t, capturedSQL, "$23")
	require.Len(t, capturedArgs, 23)
	assert.Equal(t, "acc_1", capturedArgs[0])
	assert.Equal(t, "free", capturedArgs[7])
	assert.Equal(t, "", capturedArgs[11], "granted plans carry no funding payment")
	assert.Nil(t, capturedArgs[17], "empty API key should be stored as NULL")
}

func TestAccountRepository_Create_Duplicate(t *testing.T) {
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, uniqueViolationErr()
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)

	err := repo.Create(context.Background(), &account)

	assert.ErrorIs(t, err, service.ErrAccountExists)
}

func TestAccountRepository_Create_DatabaseError(t *testing.T) {
	dbErr := errors.New("connection refused")
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, dbErr
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)

	err := repo.Create(context.Background(), &account)

	require.Error(t, err)
	assert.False(t, errors.Is(err, service.ErrAccountExists))
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "insert account")
}

func TestAccountRepository_GetByID_Success(t *testing.T) {
	var capturedSQL string
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return rowOf(accountRow("acc_1", "mqr_abc")...)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByID(context.Background(), "acc_1")

	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Contains(t, capturedSQL, "WHERE id = $1")
	assert.Equal(t, "acc_1", account.ID)
	assert.Equal(t, model.RoleUser, account.Role)
	assert.Equal(t, model.PlanPro, account.Subscription.Plan)
	assert.Equal(t, model.StatusActive, account.Subscription.Status)
	assert.Nil(t, account.Subscription.EndDate)
	assert.Equal(t, "pay_1", account.Subscription.PaymentID)
	assert.Equal(t, int64(12), account.Usage.QRGeneratedToday)
	assert.Equal(t, int64(90), account.Usage.APICallsTotal)
	assert.Equal(t, "mqr_abc", account.APIKey)
	assert.Equal(t, int64(4), account.Version)
}

func TestAccountRepository_GetByID_NullAPIKey(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return rowOf(accountRow("acc_1", "")...)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByID(context.Background(), "acc_1")

	require.NoError(t, err)
	assert.Empty(t, account.APIKey)
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return errRow(pgx.ErrNoRows)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByID(context.Background(), "missing")

	require.NoError(t, err, "not found should return nil, nil")
	assert.Nil(t, account)
}

func TestAccountRepository_GetByID_DatabaseError(t *testing.T) {
	dbErr := errors.New("connection reset")
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return errRow(dbErr)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByID(context.Background(), "acc_1")

	require.Error(t, err)
	assert.Nil(t, account)
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "get account by id")
}

func TestAccountRepository_GetByExternalID(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			capturedArgs = args
			return rowOf(accountRow("acc_1", "")...)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByExternalID(context.Background(), "auth0|acc_1")

	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Contains(t, capturedSQL, "WHERE external_id = $1")
	assert.Equal(t, []any{"auth0|acc_1"}, capturedArgs)
}

func TestAccountRepository_GetByAPIKey_EmptySkipsQuery(t *testing.T) {
	called := false
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			called = true
			return &mockRow{}
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByAPIKey(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, account)
	assert.False(t, called)
}

func TestAccountRepository_GetByAPIKey_Success(t *testing.T) {
	var capturedSQL string
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			capturedSQL = sql
			return rowOf(accountRow("acc_1", "mqr_abc")...)
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account, err := repo.GetByAPIKey(context.Background(), "mqr_abc")

	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Contains(t, capturedSQL, "WHERE api_key = $1")
}

func TestAccountRepository_Save_Success(t *testing.T) {
	var capturedSQL string
	var capturedArgs []any
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			capturedSQL = sql
			capturedArgs = arguments
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)
	account.Subscription = model.ActivateSubscription(model.PlanPro, 30, repoNow)
	account.Subscription.PaymentID = "pay_7"
	account.Version = 7

	err := repo.Save(context.Background(), &account)

	require.NoError(t, err)
	assert.Contains(t, capturedSQL, "WHERE id = $1 AND version = $2")
	assert.Contains(t, capturedSQL, "version = version + 1")
	assert.Contains(t, capturedSQL, "subscription_payment_id = $21")
	require.Len(t, capturedArgs, 21)
	assert.Equal(t, "pay_7", capturedArgs[20])
	assert.Equal(t, "acc_1", capturedArgs[0])
	assert.Equal(t, int64(7), capturedArgs[1], "guard uses the version that was read")
	assert.Equal(t, int64(8), account.Version)
}

func TestAccountRepository_Save_Conflict(t *testing.T) {
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)
	account.Version = 3

	err := repo.Save(context.Background(), &account)

	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, int64(3), account.Version, "version must not move on conflict")
}

func TestAccountRepository_Save_DuplicateAPIKey(t *testing.T) {
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, uniqueViolationErr()
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)
	account.APIKey = "mqr_taken"

	err := repo.Save(context.Background(), &account)

	assert.ErrorIs(t, err, service.ErrAccountExists)
}

func TestAccountRepository_Save_DatabaseError(t *testing.T) {
	dbErr := errors.New("timeout")
	mock := &mockPool{
		execFn: func(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, dbErr
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	account := model.NewAccount("acc_1", "auth0|1", model.ProfileClaims{}, repoNow)

	err := repo.Save(context.Background(), &account)

	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, errors.Is(err, service.ErrConflict))
}

func TestAccountRepository_List(t *testing.T) {
	var countArgs, listArgs []any
	var listSQL string
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			countArgs = args
			return rowOf(int64(2))
		},
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			listSQL = sql
			listArgs = args
			return &mockRows{data: [][]any{accountRow("acc_2", ""), accountRow("acc_1", "mqr_abc")}}, nil
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	accounts, total, err := repo.List(context.Background(), model.AccountFilter{
		Search: "50%_off",
		Plan:   model.PlanPro,
		Offset: 20,
		Limit:  10,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc_2", accounts[0].ID)
	assert.Equal(t, "mqr_abc", accounts[1].APIKey)
	assert.Contains(t, listSQL, "ORDER BY created_at DESC LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{`%50\%\_off%`, "pro", ""}, countArgs, "wildcards in the search are literal")
	assert.Equal(t, []any{`%50\%\_off%`, "pro", "", 10, 20}, listArgs)
}

func TestAccountRepository_List_EmptyFilterMatchesAll(t *testing.T) {
	var countArgs []any
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			countArgs = args
			return rowOf(int64(0))
		},
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{}, nil
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	accounts, total, err := repo.List(context.Background(), model.AccountFilter{Limit: 10})

	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.NotNil(t, accounts)
	assert.Equal(t, int64(0), total)
	assert.Equal(t, []any{"", "", ""}, countArgs)
}

func TestAccountRepository_List_QueryError(t *testing.T) {
	dbErr := errors.New("connection reset")
	mock := &mockPool{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return rowOf(int64(1))
		},
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return nil, dbErr
		},
	}

	repo := NewAccountRepositoryWithPool(mock)
	_, _, err := repo.List(context.Background(), model.AccountFilter{Limit: 10})

	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "list accounts")
}
