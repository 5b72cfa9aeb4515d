package subscription

import (
	"errors"
	"time"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
)

var (
	// ErrNotEnterprise rejects cancel() for non-enterprise plans; individuals
	// change plans with Switch, they never end up without one.
	ErrNotEnterprise = errors.New("only enterprise subscriptions can be cancelled")
)

// Ledger owns the per-user subscription state machine. All multi-row
// sequences (switch, enterprise activation) are delegated to repository
// methods that run them in a single transaction.
type Ledger struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	periodOf usagemeter.PeriodFunc
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPeriodFunc overrides the billing period derivation (tests).
func WithPeriodFunc(fn usagemeter.PeriodFunc) Option {
	return func(l *Ledger) { l.periodOf = fn }
}

// NewLedger creates a subscription ledger over the persistence layer.
func NewLedger(subs repository.SubscriptionRepository, plans repository.PlanRepository, opts ...Option) *Ledger {
	l := &Ledger{
		subs:     subs,
		plans:    plans,
		periodOf: usagemeter.CurrentMonth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// initialStatus returns the starting state for a fresh subscription:
// enterprise waits for the registration fee, everything else is live at once.
func initialStatus(plan *models.Plan) models.SubscriptionStatus {
	if plan.IsEnterprise() {
		return models.SubscriptionPendingPayment
	}
	return models.SubscriptionActive
}

// AssignInitialPlan creates the registration-time subscription for a new
// account (free plan for individuals, enterprise plan for enterprise).
func (l *Ledger) AssignInitialPlan(userID uint, planCode string) (*models.Subscription, error) {
	plan, err := l.plans.GetByCode(planCode)
	if err != nil {
		return nil, err
	}

	now := l.now()
	sub := &models.Subscription{
		UserID: userID,
		PlanID: plan.ID,
		Status: initialStatus(plan),
	}
	if sub.Status == models.SubscriptionActive {
		sub.StartedAt = &now
	}

	if err := l.subs.CreateExclusive(sub); err != nil {
		return nil, err
	}
	sub.Plan = plan
	return sub, nil
}

// Purchase creates a new subscription for a user with no live one. Returns
// repository.ErrActiveExists when the user already has an active or pending
// subscription; a pending enterprise row blocks purchases because its later
// activation must stay the user's only active subscription.
func (l *Ledger) Purchase(userID uint, planCode string) (*models.Subscription, error) {
	return l.AssignInitialPlan(userID, planCode)
}

// Activate settles the registration fee: pending subscription and account go
// active, the current usage period is seeded, the fee invoice is marked paid.
// Fails with gorm.ErrRecordNotFound when nothing is pending and with
// repository.ErrActiveExists when another active row already holds the slot.
func (l *Ledger) Activate(userID uint, paymentRef string) (*models.Subscription, error) {
	now := l.now()
	return l.subs.ActivateEnterprise(userID, paymentRef, l.periodOf(now), now)
}

// Switch moves the user from their active plan to another one. The cancel of
// the old row and the insert of the new one are one transaction; the user is
// never observable with zero or two active subscriptions.
func (l *Ledger) Switch(userID uint, newPlanCode string) (*models.Subscription, error) {
	plan, err := l.plans.GetByCode(newPlanCode)
	if err != nil {
		return nil, err
	}

	return l.subs.SwitchPlan(userID, plan.ID, l.now())
}

// Cancel ends an enterprise subscription. Non-enterprise plans are rejected
// with ErrNotEnterprise; gorm.ErrRecordNotFound surfaces when there is no
// active subscription at all.
func (l *Ledger) Cancel(userID uint) (*models.Subscription, error) {
	sub, err := l.subs.GetActiveByUserID(userID)
	if err != nil {
		return nil, err
	}

	plan := sub.Plan
	if plan == nil {
		if plan, err = l.plans.GetByID(sub.PlanID); err != nil {
			return nil, err
		}
	}
	if !plan.IsEnterprise() {
		return nil, ErrNotEnterprise
	}

	if err := sub.TransitionTo(models.SubscriptionCancelled, l.now()); err != nil {
		return nil, err
	}
	if err := l.subs.Update(sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// ActiveSubscription returns the user's live subscription with its plan.
func (l *Ledger) ActiveSubscription(userID uint) (*models.Subscription, error) {
	return l.subs.GetActiveByUserID(userID)
}

// History returns every subscription row the user ever had, newest first.
func (l *Ledger) History(userID uint) ([]models.Subscription, error) {
	return l.subs.ListByUserID(userID)
}
