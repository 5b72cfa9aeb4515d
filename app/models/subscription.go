package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus is a closed enum; every status change must go through
// TransitionTo so illegal edges are rejected in one place.
type SubscriptionStatus string

const (
	SubscriptionPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionActive         SubscriptionStatus = "active"
	SubscriptionCancelled      SubscriptionStatus = "cancelled"
	SubscriptionExpired        SubscriptionStatus = "expired"
)

// subscriptionTransitions lists the legal edges. active -> expired exists for
// an external scheduler; nothing in-process drives it.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionPendingPayment: {SubscriptionActive, SubscriptionCancelled},
	SubscriptionActive:         {SubscriptionCancelled, SubscriptionExpired},
	SubscriptionCancelled:      {},
	SubscriptionExpired:        {},
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Subscription binds a user to a plan over time. Invariant: a user has at
// most one row with status active at any instant; the ledger enforces this
// transactionally, never by cleanup.
type Subscription struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	UserID      uint               `gorm:"not null;index" json:"user_id"`
	User        *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PlanID      uint               `gorm:"not null;index" json:"plan_id"`
	Plan        *Plan              `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status      SubscriptionStatus `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	StartedAt   *time.Time         `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	ExpiresAt   *time.Time         `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CancelledAt *time.Time         `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
	// history is retained, rows are never physically deleted
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsActive reports whether this row is the live subscription.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// TransitionTo applies a status change and stamps the matching timestamp.
// Returns an error for illegal edges.
func (s *Subscription) TransitionTo(next SubscriptionStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal subscription transition %s -> %s", s.Status, next)
	}

	switch next {
	case SubscriptionActive:
		s.StartedAt = &now
	case SubscriptionCancelled:
		s.CancelledAt = &now
	case SubscriptionExpired:
		s.ExpiresAt = &now
	}

	s.Status = next
	return nil
}
