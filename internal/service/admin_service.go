package service

import (
	"context"

	"github.com/fairyhunter13/qr-saas-entitlement/internal/model"
)

const detailPayments = 10

// AdminService assembles cross-cutting views for administrators.
type AdminService struct {
	accounts *AccountService
	payments *PaymentService
	qr       *QRService
}

// NewAdminService creates a new AdminService.
func NewAdminService(accounts *AccountService, payments *PaymentService, qr *QRService) *AdminService {
	return &AdminService{accounts: accounts, payments: payments, qr: qr}
}

// Detail returns an account with its latest payments and QR code summary.
func (s *AdminService) Detail(ctx context.Context, accountID string) (*model.AccountDetail, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	payments, _, err := s.payments.List(ctx, model.PaymentFilter{AccountID: accountID}, 1, detailPayments)
	if err != nil {
		return nil, err
	}

	overview, err := s.qr.Overview(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.AccountDetail{
		Account:        account,
		RecentPayments: payments,
		QRStats:        overview.QRCodeStats,
		RecentQRCodes:  overview.Recent,
	}, nil
}
