package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan codes. The free plan doubles as the anonymous quota source: callers
// without an account get the free plan's link limit, keyed by IP.
const (
	PLAN_FREE       = "free"
	PLAN_LITE       = "lite"
	PLAN_PRO        = "pro"
	PLAN_ENTERPRISE = "enterprise"
)

// Plan is a purchasable tier. LinkLimit == nil means unlimited (enterprise).
// Rows are treated as immutable once a subscription references them.
type Plan struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Code      string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name      string          `gorm:"type:varchar(100);not null" json:"name"`
	LinkLimit *int64          `gorm:"type:bigint;default:null" json:"link_limit"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	IsActive  bool            `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsUnlimited reports whether the plan has no link quota.
func (p *Plan) IsUnlimited() bool {
	return p.LinkLimit == nil
}

// IsEnterprise reports whether the plan belongs to the enterprise class.
func (p *Plan) IsEnterprise() bool {
	return p.Code == PLAN_ENTERPRISE
}

func limitOf(n int64) *int64 {
	return &n
}

// DefaultPlans returns the seed rows inserted on first setup.
func DefaultPlans() []Plan {
	return []Plan{
		{Code: PLAN_FREE, Name: "Free", LinkLimit: limitOf(2), Price: decimal.Zero},
		{Code: PLAN_LITE, Name: "Lite", LinkLimit: limitOf(25), Price: decimal.NewFromFloat(4.99)},
		{Code: PLAN_PRO, Name: "Pro", LinkLimit: limitOf(100), Price: decimal.NewFromFloat(9.99)},
		{Code: PLAN_ENTERPRISE, Name: "Enterprise", LinkLimit: nil, Price: decimal.NewFromFloat(49.99)},
	}
}
