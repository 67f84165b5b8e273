package model

import "time"

// Role is the authorization level of an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusInactive  SubscriptionStatus = "inactive"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Subscription is embedded in Account. EndDate is nil for open-ended plans. PaymentID
// names the payment that funded the current term and is empty for granted plans.
type Subscription struct {
	Plan      Plan               `json:"plan" bson:"plan"`
	Status    SubscriptionStatus `json:"status" bson:"status"`
	StartDate time.Time          `json:"start_date" bson:"start_date"`
	EndDate   *time.Time         `json:"end_date" bson:"end_date"`
	PaymentID string             `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
}

// Usage holds the metering counters of an account.
type Usage struct {
	QRGeneratedToday int64     `json:"qr_generated_today" bson:"qr_generated_today"`
	QRGeneratedTotal int64     `json:"qr_generated_total" bson:"qr_generated_total"`
	APICallsToday    int64     `json:"api_calls_today" bson:"api_calls_today"`
	APICallsTotal    int64     `json:"api_calls_total" bson:"api_calls_total"`
	LastResetDate    time.Time `json:"last_reset_date" bson:"last_reset_date"`
}

// Account is a registered user with its subscription and usage counters.
// Version is bumped by every successful save and guards compare-and-swap writes.
type Account struct {
	ID           string       `json:"id" bson:"_id"`
	ExternalID   string       `json:"-" bson:"external_id"`
	Email        string       `json:"email" bson:"email"`
	FirstName    string       `json:"first_name" bson:"first_name"`
	LastName     string       `json:"last_name" bson:"last_name"`
	Avatar       string       `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Role         Role         `json:"role" bson:"role"`
	Subscription Subscription `json:"subscription" bson:"subscription"`
	Usage        Usage        `json:"usage" bson:"usage"`
	APIKey       string       `json:"-" bson:"api_key,omitempty"`
	IsActive     bool         `json:"is_active" bson:"is_active"`
	Version      int64        `json:"-" bson:"version"`
	CreatedAt    time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" bson:"updated_at"`
	LastLoginAt  time.Time    `json:"last_login_at" bson:"last_login_at"`
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Valid reports whether s is a known subscription status.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// AccountFilter narrows account listing queries. Search matches email, first name or
// last name case-insensitively.
type AccountFilter struct {
	Search string
	Plan   Plan
	Status SubscriptionStatus
	Offset int
	Limit  int
}

// ProfileClaims are the identity provider claims used to seed a new account.
type ProfileClaims struct {
	Email     string
	FirstName string
	LastName  string
	Avatar    string
}

// NewAccount builds a fresh account on the free plan.
func NewAccount(id, externalID string, claims ProfileClaims, now time.Time) Account {
	now = now.UTC()
	firstName := claims.FirstName
	if firstName == "" {
		firstName = "User"
	}
	return Account{
		ID:         id,
		ExternalID: externalID,
		Email:      claims.Email,
		FirstName:  firstName,
		LastName:   claims.LastName,
		Avatar:     claims.Avatar,
		Role:       RoleUser,
		Subscription: Subscription{
			Plan:      PlanFree,
			Status:    StatusActive,
			StartDate: now,
		},
		Usage:       Usage{LastResetDate: now},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}
}

// IsAdmin reports whether the account holds an administrative role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// RolloverUsage zeroes the daily counters when now is on a different UTC day than the
// last reset. The second return value reports whether a reset happened.
func RolloverUsage(u Usage, now time.Time) (Usage, bool) {
	if SameUTCDay(u.LastResetDate, now) {
		return u, false
	}
	u.QRGeneratedToday = 0
	u.APICallsToday = 0
	u.LastResetDate = now.UTC()
	return u, true
}

// AddQR adds count generations to the daily and lifetime counters.
func (u Usage) AddQR(count int64) Usage {
	u.QRGeneratedToday += count
	u.QRGeneratedTotal += count
	return u
}

// AddAPICalls adds count calls to the daily and lifetime counters.
func (u Usage) AddAPICalls(count int64) Usage {
	u.APICallsToday += count
	u.APICallsTotal += count
	return u
}

// EffectiveStatus applies lazy expiry: an active subscription whose end date has passed
// reads as expired.
func EffectiveStatus(s Subscription, now time.Time) SubscriptionStatus {
	if s.Status == StatusActive && s.EndDate != nil && now.After(*s.EndDate) {
		return StatusExpired
	}
	return s.Status
}

// ActivateSubscription returns an active subscription on plan for durationDays from now.
// Any previous plan is overwritten.
func ActivateSubscription(plan Plan, durationDays int, now time.Time) Subscription {
	now = now.UTC()
	end := now.AddDate(0, 0, durationDays)
	return Subscription{
		Plan:      plan,
		Status:    StatusActive,
		StartDate: now,
		EndDate:   &end,
	}
}

// CancelSubscription marks an active subscription cancelled, ending it now. The plan is
// kept. It returns false when the subscription is not active.
func CancelSubscription(s Subscription, now time.Time) (Subscription, bool) {
	if EffectiveStatus(s, now) != StatusActive {
		return s, false
	}
	end := now.UTC()
	s.Status = StatusCancelled
	s.EndDate = &end
	return s, true
}
