package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

const recentCodes = 5

// QRService meters, renders and stores QR codes.
type QRService struct {
	gate        *EntitlementService
	usage       *UsageService
	codes       QRCodeRepositoryInterface
	renderer    Renderer
	maxAPICalls int64
	retry       RetryConfig
	now         func() time.Time
}

// NewQRService creates a new QRService. maxAPICalls caps daily API-key calls per account.
func NewQRService(gate *EntitlementService, usage *UsageService, codes QRCodeRepositoryInterface, renderer Renderer, maxAPICalls int64, retry RetryConfig) *QRService {
	return &QRService{
		gate:        gate,
		usage:       usage,
		codes:       codes,
		renderer:    renderer,
		maxAPICalls: maxAPICalls,
		retry:       retry,
		now:         time.Now,
	}
}

// Generate renders and stores one QR code when the daily quota allows it.
func (s *QRService) Generate(ctx context.Context, accountID string, req model.GenerateQRRequest) (*model.QRCodeResponse, error) {
	return s.generate(ctx, accountID, req, model.SourceWeb)
}

func (s *QRService) generate(ctx context.Context, accountID string, req model.GenerateQRRequest, source model.QRSource) (*model.QRCodeResponse, error) {
	decision, err := s.gate.CanGenerate(ctx, accountID, 1)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	code, image, err := s.build(accountID, req, source, "")
	if err != nil {
		return nil, err
	}

	if _, err := s.usage.ConsumeQR(ctx, accountID, 1); err != nil {
		return nil, err
	}
	if err := s.codes.Create(ctx, &code); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Str("qr_id", code.ID).Msg("generated qr code not stored")
		return nil, fmt.Errorf("store qr code: %w", err)
	}
	return response(code, image), nil
}

// GenerateBatch renders every item, rejecting the whole batch when it does not fit in
// the remaining quota. Usage grows by the number of codes actually rendered, and the
// rendered codes are stored under one batch id.
func (s *QRService) GenerateBatch(ctx context.Context, accountID string, items []model.GenerateQRRequest) (*model.BulkGenerateQRResponse, error) {
	return s.generateBatch(ctx, accountID, items, model.SourceWeb)
}

func (s *QRService) generateBatch(ctx context.Context, accountID string, items []model.GenerateQRRequest, source model.QRSource) (*model.BulkGenerateQRResponse, error) {
	if len(items) == 0 {
		return nil, ErrInvalidCount
	}

	decision, err := s.gate.CanGenerate(ctx, accountID, int64(len(items)))
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	resp := &model.BulkGenerateQRResponse{
		Requested: len(items),
		Codes:     make([]model.QRCodeResponse, 0, len(items)),
	}
	stored := make([]model.QRCode, 0, len(items))
	for i, item := range items {
		code, image, err := s.build(accountID, item, source, batchID)
		if err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Int("index", i).Msg("failed to render batch item")
			resp.Failed++
			continue
		}
		stored = append(stored, code)
		resp.Codes = append(resp.Codes, *response(code, image))
		resp.Successful++
	}

	if resp.Successful == 0 {
		return resp, nil
	}
	if _, err := s.usage.ConsumeQR(ctx, accountID, int64(resp.Successful)); err != nil {
		return nil, err
	}
	if err := s.codes.CreateMany(ctx, stored); err != nil {
		log.Error().Err(err).Str("account_id", accountID).Str("batch_id", batchID).Msg("generated batch not stored")
		return nil, fmt.Errorf("store qr codes: %w", err)
	}
	return resp, nil
}

// GenerateViaAPI is Generate for API-key callers, additionally metering the call.
func (s *QRService) GenerateViaAPI(ctx context.Context, accountID string, req model.GenerateQRRequest) (*model.QRCodeResponse, error) {
	var code *model.QRCodeResponse
	err := s.viaAPI(ctx, accountID, func() (err error) {
		code, err = s.generate(ctx, accountID, req, model.SourceAPI)
		return err
	})
	return code, err
}

// GenerateBatchViaAPI is GenerateBatch for API-key callers. A batch counts as one call.
func (s *QRService) GenerateBatchViaAPI(ctx context.Context, accountID string, items []model.GenerateQRRequest) (*model.BulkGenerateQRResponse, error) {
	var resp *model.BulkGenerateQRResponse
	err := s.viaAPI(ctx, accountID, func() (err error) {
		resp, err = s.generateBatch(ctx, accountID, items, model.SourceAPI)
		return err
	})
	return resp, err
}

// ListCodes returns the account's active codes newest first.
func (s *QRService) ListCodes(ctx context.Context, accountID string, filter model.QRCodeFilter, page, limit int) ([]model.QRCode, model.Page, error) {
	page, limit = normalizePage(page, limit)
	filter.AccountID = accountID
	filter.Offset, filter.Limit = (page-1)*limit, limit

	codes, total, err := s.codes.List(ctx, filter)
	if err != nil {
		return nil, model.Page{}, fmt.Errorf("list qr codes: %w", err)
	}
	return codes, model.NewPage(page, limit, total), nil
}

// GetCode returns one of the account's codes with its image rendered again.
func (s *QRService) GetCode(ctx context.Context, accountID, id string) (*model.QRCodeDetail, error) {
	code, err := s.owned(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	image, err := s.renderer.Render(code.Content, code.Styling)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return &model.QRCodeDetail{QRCode: *code, Image: image}, nil
}

// UpdateCode edits title, content or styling. Content and styling changes must still
// render. Usage is not charged.
func (s *QRService) UpdateCode(ctx context.Context, accountID, id string, req model.UpdateQRCodeRequest) (*model.QRCodeDetail, error) {
	if req.Title == nil && req.Content == nil && req.Styling == nil {
		return nil, ErrInvalidRequest
	}

	var result *model.QRCodeDetail
	err := withConflictRetry(ctx, s.retry, func() error {
		code, err := s.owned(ctx, accountID, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			code.Title = *req.Title
		}
		if req.Content != nil {
			code.Content = *req.Content
		}
		if req.Styling != nil {
			code.Styling = *req.Styling
		}

		image, err := s.renderer.Render(code.Content, code.Styling)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}

		code.UpdatedAt = s.now().UTC()
		if err := s.codes.Save(ctx, code); err != nil {
			return err
		}
		result = &model.QRCodeDetail{QRCode: *code, Image: image}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("account_id", accountID).Str("qr_id", id).Msg("qr code updated")
	return result, nil
}

// DeleteCode hides a code from listing and stats. The row is kept and usage is not
// refunded.
func (s *QRService) DeleteCode(ctx context.Context, accountID, id string) error {
	err := withConflictRetry(ctx, s.retry, func() error {
		code, err := s.owned(ctx, accountID, id)
		if err != nil {
			return err
		}
		code.IsActive = false
		code.UpdatedAt = s.now().UTC()
		return s.codes.Save(ctx, code)
	})
	if err != nil {
		return err
	}

	log.Info().Str("account_id", accountID).Str("qr_id", id).Msg("qr code deleted")
	return nil
}

// Overview counts the account's active codes per type and lists the newest few.
func (s *QRService) Overview(ctx context.Context, accountID string) (*model.QRCodeOverview, error) {
	stats, err := s.codes.Stats(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("qr code stats: %w", err)
	}
	recent, _, err := s.codes.List(ctx, model.QRCodeFilter{AccountID: accountID, Limit: recentCodes})
	if err != nil {
		return nil, fmt.Errorf("list recent qr codes: %w", err)
	}
	return &model.QRCodeOverview{QRCodeStats: stats, Recent: recent}, nil
}

// ListCodesViaAPI is ListCodes for API-key callers.
func (s *QRService) ListCodesViaAPI(ctx context.Context, accountID string, filter model.QRCodeFilter, page, limit int) ([]model.QRCode, model.Page, error) {
	var (
		codes []model.QRCode
		meta  model.Page
	)
	err := s.viaAPI(ctx, accountID, func() (err error) {
		codes, meta, err = s.ListCodes(ctx, accountID, filter, page, limit)
		return err
	})
	return codes, meta, err
}

// GetCodeViaAPI is GetCode for API-key callers.
func (s *QRService) GetCodeViaAPI(ctx context.Context, accountID, id string) (*model.QRCodeDetail, error) {
	var detail *model.QRCodeDetail
	err := s.viaAPI(ctx, accountID, func() (err error) {
		detail, err = s.GetCode(ctx, accountID, id)
		return err
	})
	return detail, err
}

// UpdateCodeViaAPI is UpdateCode for API-key callers.
func (s *QRService) UpdateCodeViaAPI(ctx context.Context, accountID, id string, req model.UpdateQRCodeRequest) (*model.QRCodeDetail, error) {
	var detail *model.QRCodeDetail
	err := s.viaAPI(ctx, accountID, func() (err error) {
		detail, err = s.UpdateCode(ctx, accountID, id, req)
		return err
	})
	return detail, err
}

// DeleteCodeViaAPI is DeleteCode for API-key callers.
func (s *QRService) DeleteCodeViaAPI(ctx context.Context, accountID, id string) error {
	return s.viaAPI(ctx, accountID, func() error {
		return s.DeleteCode(ctx, accountID, id)
	})
}

// APIStats reports the account's usage as seen by API-key callers.
func (s *QRService) APIStats(ctx context.Context, accountID string) (*model.Account, model.PlanLimits, error) {
	account, err := s.usage.RolloverIfNeeded(ctx, accountID)
	if err != nil {
		return nil, model.PlanLimits{}, err
	}
	return account, model.LimitsFor(account.Subscription.Plan), nil
}

// MaxAPICalls is the configured daily API call cap.
func (s *QRService) MaxAPICalls() int64 {
	return s.maxAPICalls
}

// viaAPI checks the daily API call cap, runs op and meters one call when op succeeds.
func (s *QRService) viaAPI(ctx context.Context, accountID string, op func() error) error {
	decision, err := s.gate.CanCallAPI(ctx, accountID, s.maxAPICalls)
	if err != nil {
		return err
	}
	if err := decision.Err(); err != nil {
		return err
	}
	if err := op(); err != nil {
		return err
	}
	_, err = s.usage.IncrementAPICalls(ctx, accountID, 1)
	return err
}

// owned loads an active code belonging to accountID. Codes of other accounts are
// reported as missing.
func (s *QRService) owned(ctx context.Context, accountID, id string) (*model.QRCode, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get qr code: %w", err)
	}
	if code == nil || !code.IsActive || code.AccountID != accountID {
		return nil, ErrQRCodeNotFound
	}
	return code, nil
}

func (s *QRService) build(accountID string, req model.GenerateQRRequest, source model.QRSource, batchID string) (model.QRCode, string, error) {
	image, err := s.renderer.Render(req.Content, req.Styling)
	if err != nil {
		return model.QRCode{}, "", fmt.Errorf("render qr code: %w", err)
	}
	qrType := req.Type
	if qrType == "" {
		qrType = model.DefaultQRType
	}
	now := s.now().UTC()
	return model.QRCode{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Title:     req.Title,
		Content:   req.Content,
		Type:      qrType,
		Styling:   req.Styling,
		BatchID:   batchID,
		Source:    source,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, image, nil
}

func response(code model.QRCode, image string) *model.QRCodeResponse {
	return &model.QRCodeResponse{
		ID:      code.ID,
		BatchID: code.BatchID,
		Title:   code.Title,
		Content: code.Content,
		Type:    code.Type,
		Image:   image,
	}
}
