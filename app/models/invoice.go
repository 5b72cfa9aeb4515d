package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus is a closed enum. overdue and cancelled are reachable states
// for an external payment scheduler/webhook; nothing in-process sets them.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoicePending:   {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue:   {InvoicePaid, InvoiceCancelled},
	InvoicePaid:      {},
	InvoiceCancelled: {},
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const (
	INVOICE_TYPE_REGISTRATION_FEE = "registration_fee"
	INVOICE_TYPE_MONTHLY_USAGE    = "monthly_usage"
)

// Invoice is a frozen, priced summary of one usage period or a one-time fee.
// UsageSnapshot holds the exact breakdown at issuance; later metering against
// the same period never touches an issued invoice.
type Invoice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Number           string          `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"number"`
	UserID           uint            `gorm:"not null;index" json:"user_id"`
	User             *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type             string          `gorm:"type:varchar(32);not null" json:"type" validate:"oneof=registration_fee monthly_usage"`
	PeriodStart      time.Time       `gorm:"type:datetime;not null" json:"period_start"`
	PeriodEnd        time.Time       `gorm:"type:datetime;not null" json:"period_end"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Status           InvoiceStatus   `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	UsageSnapshot    JSON            `gorm:"type:json" json:"usage_snapshot"`
	PaymentReference string          `gorm:"type:varchar(191);default:null" json:"payment_reference,omitempty"`
	PaymentDate      *time.Time      `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate assigns the invoice number when the caller did not.
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.Number == "" {
		i.Number = uuid.New().String()
	}
	return nil
}

// MarkPaid transitions the invoice to paid and records the payment details.
func (i *Invoice) MarkPaid(paymentReference string, now time.Time) error {
	if i.Status == InvoicePaid {
		return fmt.Errorf("invoice %s is already paid", i.Number)
	}
	if !i.Status.CanTransitionTo(InvoicePaid) {
		return fmt.Errorf("illegal invoice transition %s -> %s", i.Status, InvoicePaid)
	}
	i.Status = InvoicePaid
	i.PaymentReference = paymentReference
	i.PaymentDate = &now
	return nil
}
