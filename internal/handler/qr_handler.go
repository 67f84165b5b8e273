package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/middleware"
	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

// QRServiceInterface defines the metered QR generation and stored-code operations.
type QRServiceInterface interface {
	Generate(ctx context.Context, accountID string, req model.GenerateQRRequest) (*model.QRCodeResponse, error)
	GenerateBatch(ctx context.Context, accountID string, items []model.GenerateQRRequest) (*model.BulkGenerateQRResponse, error)
	GenerateViaAPI(ctx context.Context, accountID string, req model.GenerateQRRequest) (*model.QRCodeResponse, error)
	GenerateBatchViaAPI(ctx context.Context, accountID string, items []model.GenerateQRRequest) (*model.BulkGenerateQRResponse, error)
	ListCodes(ctx context.Context, accountID string, filter model.QRCodeFilter, page, limit int) ([]model.QRCode, model.Page, error)
	GetCode(ctx context.Context, accountID, id string) (*model.QRCodeDetail, error)
	UpdateCode(ctx context.Context, accountID, id string, req model.UpdateQRCodeRequest) (*model.QRCodeDetail, error)
	DeleteCode(ctx context.Context, accountID, id string) error
	Overview(ctx context.Context, accountID string) (*model.QRCodeOverview, error)
	ListCodesViaAPI(ctx context.Context, accountID string, filter model.QRCodeFilter, page, limit int) ([]model.QRCode, model.Page, error)
	GetCodeViaAPI(ctx context.Context, accountID, id string) (*model.QRCodeDetail, error)
	UpdateCodeViaAPI(ctx context.Context, accountID, id string, req model.UpdateQRCodeRequest) (*model.QRCodeDetail, error)
	DeleteCodeViaAPI(ctx context.Context, accountID, id string) error
	APIStats(ctx context.Context, accountID string) (*model.Account, model.PlanLimits, error)
	MaxAPICalls() int64
}

// QRHandler handles QR generation for signed-in users and API-key callers.
type QRHandler struct {
	service   QRServiceInterface
	validator *validator.Validate
}

// NewQRHandler creates a new QRHandler.
func NewQRHandler(svc QRServiceInterface, v *validator.Validate) *QRHandler {
	return &QRHandler{service: svc, validator: v}
}

// Generate handles POST /api/qr/generate.
func (h *QRHandler) Generate(c *fiber.Ctx) error {
	return h.generate(c, h.service.Generate)
}

// GenerateBulk handles POST /api/qr/bulk.
func (h *QRHandler) GenerateBulk(c *fiber.Ctx) error {
	return h.generateBatch(c, h.service.GenerateBatch)
}

// APIGenerate handles POST /api/v1/qr/generate.
func (h *QRHandler) APIGenerate(c *fiber.Ctx) error {
	return h.generate(c, h.service.GenerateViaAPI)
}

// APIGenerateBulk handles POST /api/v1/qr/bulk-generate.
func (h *QRHandler) APIGenerateBulk(c *fiber.Ctx) error {
	return h.generateBatch(c, h.service.GenerateBatchViaAPI)
}

// List handles GET /api/qr?search=&type=&batch_id=&page=&limit=.
func (h *QRHandler) List(c *fiber.Ctx) error {
	return h.list(c, h.service.ListCodes)
}

// Get handles GET /api/qr/:id.
func (h *QRHandler) Get(c *fiber.Ctx) error {
	return h.get(c, h.service.GetCode)
}

// Update handles PUT /api/qr/:id.
func (h *QRHandler) Update(c *fiber.Ctx) error {
	return h.update(c, h.service.UpdateCode)
}

// Delete handles DELETE /api/qr/:id.
func (h *QRHandler) Delete(c *fiber.Ctx) error {
	return h.delete(c, h.service.DeleteCode)
}

// Overview handles GET /api/qr/stats/overview.
func (h *QRHandler) Overview(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	overview, err := h.service.Overview(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to load qr stats", "account_id", account.ID)
	}
	return c.JSON(overview)
}

// APIList handles GET /api/v1/qr.
func (h *QRHandler) APIList(c *fiber.Ctx) error {
	return h.list(c, h.service.ListCodesViaAPI)
}

// APIGet handles GET /api/v1/qr/:id.
func (h *QRHandler) APIGet(c *fiber.Ctx) error {
	return h.get(c, h.service.GetCodeViaAPI)
}

// APIUpdate handles PUT /api/v1/qr/:id.
func (h *QRHandler) APIUpdate(c *fiber.Ctx) error {
	return h.update(c, h.service.UpdateCodeViaAPI)
}

// APIDelete handles DELETE /api/v1/qr/:id.
func (h *QRHandler) APIDelete(c *fiber.Ctx) error {
	return h.delete(c, h.service.DeleteCodeViaAPI)
}

// APIStats handles GET /api/v1/stats.
func (h *QRHandler) APIStats(c *fiber.Ctx) error {
	account := middleware.AccountFrom(c)

	current, limits, err := h.service.APIStats(c.Context(), account.ID)
	if err != nil {
		return respondError(c, err, "failed to load api stats", "account_id", account.ID)
	}

	usage := current.Usage
	return c.JSON(fiber.Map{
		"usage": fiber.Map{
			"qr_generated_today": usage.QRGeneratedToday,
			"qr_generated_total": usage.QRGeneratedTotal,
			"api_calls_today":    usage.APICallsToday,
			"api_calls_total":    usage.APICallsTotal,
			"remaining_qr_today": max(0, limits.Daily-usage.QRGeneratedToday),
			"daily_limit":        limits.Daily,
			"api_calls_limit":    h.service.MaxAPICalls(),
		},
		"subscription": fiber.Map{
			"plan":   current.Subscription.Plan,
			"status": current.Subscription.Status,
		},
	})
}

type generateFunc func(ctx context.Context, accountID string, req model.GenerateQRRequest) (*model.QRCodeResponse, error)

type generateBatchFunc func(ctx context.Context, accountID string, items []model.GenerateQRRequest) (*model.BulkGenerateQRResponse, error)

type listFunc func(ctx context.Context, accountID string, filter model.QRCodeFilter, page, limit int) ([]model.QRCode, model.Page, error)

type getFunc func(ctx context.Context, accountID, id string) (*model.QRCodeDetail, error)

type updateFunc func(ctx context.Context, accountID, id string, req model.UpdateQRCodeRequest) (*model.QRCodeDetail, error)

type deleteFunc func(ctx context.Context, accountID, id string) error

func (h *QRHandler) list(c *fiber.Ctx, fn listFunc) error {
	account := middleware.AccountFrom(c)

	filter := model.QRCodeFilter{
		Search:  c.Query("search"),
		Type:    c.Query("type"),
		BatchID: c.Query("batch_id"),
	}
	codes, page, err := fn(c.Context(), account.ID, filter, c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err, "failed to list qr codes", "account_id", account.ID)
	}
	return c.JSON(fiber.Map{"qr_codes": codes, "pagination": page})
}

func (h *QRHandler) get(c *fiber.Ctx, fn getFunc) error {
	account := middleware.AccountFrom(c)
	id := c.Params("id")

	detail, err := fn(c.Context(), account.ID, id)
	if err != nil {
		return respondError(c, err, "failed to load qr code", "account_id", account.ID, "qr_id", id)
	}
	return c.JSON(detail)
}

func (h *QRHandler) update(c *fiber.Ctx, fn updateFunc) error {
	account := middleware.AccountFrom(c)
	id := c.Params("id")

	var req model.UpdateQRCodeRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	detail, err := fn(c.Context(), account.ID, id, req)
	if err != nil {
		return respondError(c, err, "failed to update qr code", "account_id", account.ID, "qr_id", id)
	}
	return c.JSON(detail)
}

func (h *QRHandler) delete(c *fiber.Ctx, fn deleteFunc) error {
	account := middleware.AccountFrom(c)
	id := c.Params("id")

	if err := fn(c.Context(), account.ID, id); err != nil {
		return respondError(c, err, "failed to delete qr code", "account_id", account.ID, "qr_id", id)
	}
	return c.JSON(fiber.Map{"message": "qr code deleted"})
}

func (h *QRHandler) generate(c *fiber.Ctx, fn generateFunc) error {
	account := middleware.AccountFrom(c)

	var req model.GenerateQRRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	code, err := fn(c.Context(), account.ID, req)
	if err != nil {
		return respondError(c, err, "failed to generate qr code", "account_id", account.ID)
	}
	return c.Status(fiber.StatusCreated).JSON(code)
}

func (h *QRHandler) generateBatch(c *fiber.Ctx, fn generateBatchFunc) error {
	account := middleware.AccountFrom(c)

	var req model.BulkGenerateQRRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	result, err := fn(c.Context(), account.ID, req.Items)
	if err != nil {
		return respondError(c, err, "failed to generate qr batch",
			"account_id", account.ID, "requested", len(req.Items))
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}
