package quota

import (
	"errors"

	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// Denial reasons surfaced to clients.
const (
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonNoActivePlan  = "no_active_plan"
)

// Snapshot reports the exact counts behind a quota decision. Limit and
// Remaining are nil for unlimited (enterprise) plans.
type Snapshot struct {
	Used      int64  `json:"used"`
	Limit     *int64 `json:"limit"`
	Remaining *int64 `json:"remaining"`
}

// NewSnapshot derives a snapshot from a live count and a plan limit.
func NewSnapshot(used int64, limit *int64) Snapshot {
	s := Snapshot{Used: used, Limit: limit}
	if limit != nil {
		remaining := *limit - used
		if remaining < 0 {
			remaining = 0
		}
		s.Remaining = &remaining
	}
	return s
}

// Decision is the outcome of a quota evaluation. Plan is the plan the
// decision was made against (the free plan for anonymous callers).
type Decision struct {
	Allowed  bool
	Reason   string
	Plan     *models.Plan
	Snapshot Snapshot
}

// Resolver decides whether an identity may create another link. The counts
// it reads are live queries, never cached; the snapshot in the response is
// the same count the decision used.
type Resolver struct {
	links repository.LinkRepository
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
}

// NewResolver creates a quota resolver over the persistence layer.
func NewResolver(links repository.LinkRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository) *Resolver {
	return &Resolver{links: links, subs: subs, plans: plans}
}

// PlanFor resolves the plan governing an identity: the free plan for
// anonymous callers, the active subscription's plan for accounts. Returns
// gorm.ErrRecordNotFound when an account has no active subscription.
func (r *Resolver) PlanFor(identity usercontext.UserContext) (*models.Plan, error) {
	if !identity.IsLoggedIn {
		return r.plans.GetByCode(models.PLAN_FREE)
	}

	sub, err := r.subs.GetActiveByUserID(identity.UserID)
	if err != nil {
		return nil, err
	}
	if sub.Plan != nil {
		return sub.Plan, nil
	}
	return r.plans.GetByID(sub.PlanID)
}

// Evaluate decides whether the identity may create a link right now.
//
// Note: this read-only evaluation can race a concurrent create; the creation
// path re-checks the limit inside the insert transaction
// (LinkRepository.CreateWithinQuota), which is the authoritative gate.
func (r *Resolver) Evaluate(identity usercontext.UserContext) (*Decision, error) {
	plan, err := r.PlanFor(identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) && identity.IsLoggedIn {
			return &Decision{Allowed: false, Reason: ReasonNoActivePlan}, nil
		}
		return nil, err
	}

	used, err := r.countFor(identity)
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Plan:     plan,
		Snapshot: NewSnapshot(used, plan.LinkLimit),
	}

	if plan.IsUnlimited() {
		decision.Allowed = true
		return decision, nil
	}

	if used < *plan.LinkLimit {
		decision.Allowed = true
		return decision, nil
	}

	decision.Reason = ReasonQuotaExceeded
	return decision, nil
}

func (r *Resolver) countFor(identity usercontext.UserContext) (int64, error) {
	if identity.IsLoggedIn {
		return r.links.CountByUserID(identity.UserID)
	}
	return r.links.CountByOwnerIP(identity.ClientIP)
}
