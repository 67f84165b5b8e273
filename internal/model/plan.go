package model

// Plan is a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// PlanLimits holds the QR generation limits of a plan.
type PlanLimits struct {
	Daily int64 `json:"daily"`
	Total int64 `json:"total"`
}

// PlanDetails is one row of the plan table. Prices are in minor currency units.
type PlanDetails struct {
	ID           Plan       `json:"id"`
	Name         string     `json:"name"`
	Ordinal      int        `json:"-"`
	Limits       PlanLimits `json:"limits"`
	Price        int64      `json:"price"`
	DurationDays int        `json:"duration"`
	Purchasable  bool       `json:"-"`
	Features     []string   `json:"features"`
}

// DefaultDurationDays is the length of a paid subscription period.
const DefaultDurationDays = 30

// Plans is the single table consumed by both enforcement and pricing.
var Plans = map[Plan]PlanDetails{
	PlanFree: {
		ID:           PlanFree,
		Name:         "Free Plan",
		Ordinal:      0,
		Limits:       PlanLimits{Daily: 100, Total: 1000},
		DurationDays: 0,
		Features:     []string{"100 QR codes per day", "Basic Styling"},
	},
	PlanPro: {
		ID:           PlanPro,
		Name:         "Pro Plan",
		Ordinal:      1,
		Limits:       PlanLimits{Daily: 10000, Total: 100000},
		Price:        59900,
		DurationDays: DefaultDurationDays,
		Purchasable:  true,
		Features: []string{
			"10,000 QR codes per day",
			"API Access",
			"Analytics Dashboard",
			"Priority Support",
			"Bulk QR Generation",
			"Custom Styling",
		},
	},
	PlanEnterprise: {
		ID:           PlanEnterprise,
		Name:         "Enterprise Plan",
		Ordinal:      2,
		Limits:       PlanLimits{Daily: 100000, Total: 1000000},
		Price:        479900,
		DurationDays: DefaultDurationDays,
		Purchasable:  true,
		Features: []string{
			"100,000 QR codes per day",
			"API Access",
			"Advanced Analytics",
			"Dedicated Support",
			"Custom Branding",
			"Priority Processing",
		},
	},
}

// planOrder lists plans by ordinal for stable presentation.
var planOrder = []Plan{PlanFree, PlanPro, PlanEnterprise}

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	_, ok := Plans[p]
	return ok
}

// Details returns the plan row, falling back to the free plan for unknown plans.
func (p Plan) Details() PlanDetails {
	if d, ok := Plans[p]; ok {
		return d
	}
	return Plans[PlanFree]
}

// Ordinal returns the position of p in the plan hierarchy. Unknown plans rank as free.
func (p Plan) Ordinal() int {
	return p.Details().Ordinal
}

// LimitsFor returns the generation limits of a plan. Unknown plans get the free limits.
func LimitsFor(p Plan) PlanLimits {
	return p.Details().Limits
}

// OrderedPlans returns every plan row ordered free → enterprise.
func OrderedPlans() []PlanDetails {
	out := make([]PlanDetails, 0, len(planOrder))
	for _, p := range planOrder {
		out = append(out, Plans[p])
	}
	return out
}
