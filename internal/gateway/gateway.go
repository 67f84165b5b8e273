// Package gateway verifies payment provider signatures and mints order ids.
// Checkout itself happens between the client and the provider.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const orderPrefix = "order_"

var (
	ErrInvalidAmount   = errors.New("amount must not be negative")
	ErrInvalidCurrency = errors.New("currency is required")
)

// Credentials are the provider keys of this merchant.
type Credentials struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// HMACGateway signs and verifies with HMAC-SHA256.
type HMACGateway struct {
	creds Credentials
}

// NewHMACGateway creates an HMACGateway.
func NewHMACGateway(creds Credentials) *HMACGateway {
	if creds.KeySecret == "" || creds.WebhookSecret == "" {
		log.Warn().Msg("payment gateway secrets are empty; signatures will not verify")
	}
	return &HMACGateway{creds: creds}
}

// KeyID is handed to the client to open checkout.
func (g *HMACGateway) KeyID() string {
	return g.creds.KeyID
}

// CreateOrder mints an order id for amount minor units.
func (g *HMACGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if strings.TrimSpace(currency) == "" {
		return "", ErrInvalidCurrency
	}

	orderID := orderPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	log.Debug().
		Str("order_id", orderID).
		Str("receipt", receipt).
		Int64("amount", amount).
		Str("currency", currency).
		Msg("gateway order created")
	return orderID, nil
}

// VerifyPayment checks the checkout signature over "orderID|transactionID".
func (g *HMACGateway) VerifyPayment(orderID, transactionID, signature string) bool {
	if g.creds.KeySecret == "" || orderID == "" || transactionID == "" {
		return false
	}
	return verify(g.creds.KeySecret, []byte(orderID+"|"+transactionID), signature)
}

// VerifyWebhook checks the signature over the raw request body.
func (g *HMACGateway) VerifyWebhook(body []byte, signature string) bool {
	if g.creds.WebhookSecret == "" || len(body) == 0 {
		return false
	}
	return verify(g.creds.WebhookSecret, body, signature)
}

// SignPayment produces the checkout signature the provider would send.
func (g *HMACGateway) SignPayment(orderID, transactionID string) string {
	return sign(g.creds.KeySecret, []byte(orderID+"|"+transactionID))
}

// SignWebhook produces the webhook signature the provider would send.
func (g *HMACGateway) SignWebhook(body []byte) string {
	return sign(g.creds.WebhookSecret, body)
}

func sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
