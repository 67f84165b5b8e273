package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/service"
	appvalidator "github.com/fairyhunter13/qr-saas-entitlement/internal/validator"
)

type mockAdminServices struct {
	listAccountsFn func(ctx context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, model.Page, error)
	setRoleFn      func(ctx context.Context, accountID string, role model.Role) (*model.Account, error)
	overrideFn     func(ctx context.Context, accountID string, req model.UpdateSubscriptionRequest) (*model.Account, error)
	listPaymentsFn func(ctx context.Context, filter model.PaymentFilter, page, limit int) ([]model.Payment, model.Page, error)
	detailFn       func(ctx context.Context, accountID string) (*model.AccountDetail, error)
}

type mockAccountDirectory struct{ m *mockAdminServices }

func (d mockAccountDirectory) List(ctx context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, model.Page, error) {
	if d.m.listAccountsFn != nil {
		return d.m.listAccountsFn(ctx, filter, page, limit)
	}
	return []model.Account{}, model.NewPage(page, limit, 0), nil
}

func (d mockAccountDirectory) SetRole(ctx context.Context, accountID string, role model.Role) (*model.Account, error) {
	if d.m.setRoleFn != nil {
		return d.m.setRoleFn(ctx, accountID, role)
	}
	account := testAccount()
	account.ID, account.Role = accountID, role
	return account, nil
}

func (m *mockAdminServices) Override(ctx context.Context, accountID string, req model.UpdateSubscriptionRequest) (*model.Account, error) {
	if m.overrideFn != nil {
		return m.overrideFn(ctx, accountID, req)
	}
	account := testAccount()
	account.ID = accountID
	return account, nil
}

func (m *mockAdminServices) List(ctx context.Context, filter model.PaymentFilter, page, limit int) ([]model.Payment, model.Page, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, filter, page, limit)
	}
	return []model.Payment{}, model.NewPage(page, limit, 0), nil
}

func (m *mockAdminServices) Detail(ctx context.Context, accountID string) (*model.AccountDetail, error) {
	if m.detailFn != nil {
		return m.detailFn(ctx, accountID)
	}
	account := testAccount()
	account.ID = accountID
	return &model.AccountDetail{Account: account, RecentPayments: []model.Payment{}, RecentQRCodes: []model.QRCode{}}, nil
}

func setupAdminApp(m *mockAdminServices) *fiber.App {
	app := fiber.New()
	admin := testAccount()
	admin.ID = "admin_1"
	admin.Role = model.RoleSuperAdmin

	h := NewAdminHandler(mockAccountDirectory{m: m}, m, m, m, appvalidator.New())
	app.Get("/api/admin/users", as(admin), h.ListUsers)
	app.Get("/api/admin/users/:id", as(admin), h.GetUser)
	app.Put("/api/admin/users/:id/role", as(admin), h.UpdateRole)
	app.Put("/api/admin/users/:id/subscription", as(admin), h.UpdateSubscription)
	app.Get("/api/admin/payments", as(admin), h.ListPayments)
	return app
}

func TestListUsers(t *testing.T) {
	var got model.AccountFilter
	m := &mockAdminServices{
		listAccountsFn: func(_ context.Context, filter model.AccountFilter, page, limit int) ([]model.Account, model.Page, error) {
			got = filter
			assert.Equal(t, 3, page)
			assert.Equal(t, 20, limit)
			return []model.Account{*testAccount()}, model.NewPage(page, limit, 41), nil
		},
	}
	app := setupAdminApp(m)

	status, body := send(t, app, jsonRequest(http.MethodGet, "/api/admin/users?search=ada&plan=pro&status=active&page=3&limit=20", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, model.AccountFilter{Search: "ada", Plan: model.PlanPro, Status: model.StatusActive}, got)
	assert.Len(t, body["users"], 1)
	assert.NotNil(t, body["pagination"])
}

func TestListUsers_InvalidPlan(t *testing.T) {
	m := &mockAdminServices{
		listAccountsFn: func(context.Context, model.AccountFilter, int, int) ([]model.Account, model.Page, error) {
			return nil, model.Page{}, service.ErrInvalidPlan
		},
	}
	app := setupAdminApp(m)

	status, _ := send(t, app, jsonRequest(http.MethodGet, "/api/admin/users?plan=gold", ""))
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetUser(t *testing.T) {
	app := setupAdminApp(&mockAdminServices{})

	status, body := send(t, app, jsonRequest(http.MethodGet, "/api/admin/users/acc_9", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "acc_9", body["account"].(map[string]any)["id"])
	assert.NotNil(t, body["qr_stats"])
}

func TestGetUser_NotFound(t *testing.T) {
	m := &mockAdminServices{
		detailFn: func(context.Context, string) (*model.AccountDetail, error) {
			return nil, service.ErrAccountNotFound
		},
	}
	app := setupAdminApp(m)

	status, _ := send(t, app, jsonRequest(http.MethodGet, "/api/admin/users/missing", ""))
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestUpdateRole(t *testing.T) {
	var gotID string
	var gotRole model.Role
	m := &mockAdminServices{
		setRoleFn: func(_ context.Context, accountID string, role model.Role) (*model.Account, error) {
			gotID, gotRole = accountID, role
			account := testAccount()
			account.ID, account.Role = accountID, role
			return account, nil
		},
	}
	app := setupAdminApp(m)

	status, body := send(t, app, jsonRequest(http.MethodPut, "/api/admin/users/acc_2/role", `{"role":"admin"}`))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "acc_2", gotID)
	assert.Equal(t, model.RoleAdmin, gotRole)
	assert.Equal(t, "admin", body["role"])
}

func TestUpdateRole_Rejected(t *testing.T) {
	testCases := []struct {
		name    string
		target  string
		body    string
		wantErr string
	}{
		{"unknown_role", "/api/admin/users/acc_2/role", `{"role":"owner"}`, "invalid request: role must be one of user admin super_admin"},
		{"missing_role", "/api/admin/users/acc_2/role", `{}`, "invalid request: role is required"},
		{"own_role", "/api/admin/users/admin_1/role", `{"role":"user"}`, "invalid request: cannot change your own role"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockAdminServices{
				setRoleFn: func(context.Context, string, model.Role) (*model.Account, error) {
					t.Error("role must not be written")
					return nil, nil
				},
			}
			app := setupAdminApp(m)

			status, body := send(t, app, jsonRequest(http.MethodPut, tc.target, tc.body))
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tc.wantErr, body["error"])
		})
	}
}

func TestUpdateSubscription(t *testing.T) {
	var got model.UpdateSubscriptionRequest
	m := &mockAdminServices{
		overrideFn: func(_ context.Context, accountID string, req model.UpdateSubscriptionRequest) (*model.Account, error) {
			got = req
			account := testAccount()
			account.ID = accountID
			account.Subscription.Plan = model.Plan(req.Plan)
			return account, nil
		},
	}
	app := setupAdminApp(m)

	status, body := send(t, app, jsonRequest(http.MethodPut, "/api/admin/users/acc_2/subscription",
		`{"plan":"enterprise","end_date":"2026-01-01T00:00:00Z"}`))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "enterprise", got.Plan)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "enterprise", body["subscription"].(map[string]any)["plan"])
}

func TestUpdateSubscription_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"bad_plan", `{"plan":"gold"}`, nil, fiber.StatusBadRequest},
		{"bad_status", `{"status":"paused"}`, nil, fiber.StatusBadRequest},
		{"nothing", `{}`, service.ErrInvalidRequest, fiber.StatusBadRequest},
		{"unknown_account", `{"plan":"pro"}`, service.ErrAccountNotFound, fiber.StatusNotFound},
		{"store_down", `{"plan":"pro"}`, errors.New("connection reset"), fiber.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &mockAdminServices{
				overrideFn: func(context.Context, string, model.UpdateSubscriptionRequest) (*model.Account, error) {
					return nil, tc.err
				},
			}
			app := setupAdminApp(m)

			status, _ := send(t, app, jsonRequest(http.MethodPut, "/api/admin/users/acc_2/subscription", tc.body))
			assert.Equal(t, tc.wantStatus, status)
		})
	}
}

func TestListPayments(t *testing.T) {
	var got model.PaymentFilter
	m := &mockAdminServices{
		listPaymentsFn: func(_ context.Context, filter model.PaymentFilter, page, limit int) ([]model.Payment, model.Page, error) {
			got = filter
			return []model.Payment{{ID: "pay_1"}}, model.NewPage(page, limit, 1), nil
		},
	}
	app := setupAdminApp(m)

	status, body := send(t, app, jsonRequest(http.MethodGet, "/api/admin/payments?status=completed&plan=pro&user_id=acc_2", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, model.PaymentFilter{AccountID: "acc_2", Status: model.PaymentCompleted, Plan: model.PlanPro}, got)
	assert.Len(t, body["payments"], 1)
}

func TestListPayments_InvalidFilter(t *testing.T) {
	m := &mockAdminServices{
		listPaymentsFn: func(context.Context, model.PaymentFilter, int, int) ([]model.Payment, model.Page, error) {
			t.Error("invalid filters must not reach the store")
			return nil, model.Page{}, nil
		},
	}
	app := setupAdminApp(m)

	status, _ := send(t, app, jsonRequest(http.MethodGet, "/api/admin/payments?status=lost", ""))
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = send(t, app, jsonRequest(http.MethodGet, "/api/admin/payments?plan=gold", ""))
	assert.Equal(t, fiber.StatusBadRequest, status)
}
