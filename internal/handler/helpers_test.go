package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

func testAccount() *model.Account {
	return &model.Account{
		ID:       "acc_1",
		Email:    "ada@example.com",
		Role:     model.RoleUser,
		IsActive: true,
		Subscription: model.Subscription{
			Plan:   model.PlanFree,
			Status: model.StatusActive,
		},
	}
}

// as attaches account the way the authentication middleware would.
func as(account *model.Account) fiber.Handler {
	return func(c *fiber.Ctx) error {
		middleware.WithAccount(c, account)
		return c.Next()
	}
}

func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// send runs req against app and decodes a JSON object body.
func send(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}
