package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
)

// ErrQuotaExceeded is returned by CreateWithinQuota when the locking count
// shows the owner's limit is already reached.
var ErrQuotaExceeded = errors.New("link quota exceeded")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	// ListActiveEnterprise returns every active enterprise account; the
	// monthly invoice sweep iterates these.
	ListActiveEnterprise() ([]models.User, error)
	Count() (int64, error)
}

// PlanRepository defines the interface for plan lookups. Plans are seeded at
// setup and immutable afterwards, so there are no mutation methods.
type PlanRepository interface {
	GetByID(id uint) (*models.Plan, error)
	GetByCode(code string) (*models.Plan, error)
	ListActive() ([]models.Plan, error)
}

// LinkRepository defines the interface for link-related database operations.
//
// Create surfaces code collisions as gorm.ErrDuplicatedKey (TranslateError is
// enabled on the handle); the allocator retries on that and nothing else.
// CreateWithinQuota runs the owner count and the insert in one transaction
// with a locking count so two concurrent creates cannot both observe a free
// slot (quota race). It returns the owner's count before the insert.
type LinkRepository interface {
	Create(link *models.Link) error
	CreateWithinQuota(link *models.Link, limit *int64) (used int64, err error)
	GetByCode(code string) (*models.Link, error)
	CountByUserID(userID uint) (int64, error)
	CountByOwnerIP(ip string) (int64, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Link, error)
	Count() (int64, error)
}

// SubscriptionRepository defines the interface for subscription rows. The
// multi-step sequences (switch, enterprise activation) live here so the
// transaction boundary stays in the persistence layer.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	// CreateExclusive inserts the row only if the user has no active or
	// pending subscription, checked under a row lock; returns ErrActiveExists
	// otherwise.
	CreateExclusive(sub *models.Subscription) error
	Update(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	GetActiveByUserID(userID uint) (*models.Subscription, error)
	ListByUserID(userID uint) ([]models.Subscription, error)
	// SwitchPlan cancels the current active subscription and inserts the new
	// active row in one transaction; mid-sequence failure rolls both back.
	SwitchPlan(userID uint, newPlanID uint, now time.Time) (*models.Subscription, error)
	// ActivateEnterprise flips the pending subscription to active, the account
	// to active, seeds the current usage period and marks the registration-fee
	// invoice paid, all or nothing. Returns ErrActiveExists if the user
	// somehow already holds an active row.
	ActivateEnterprise(userID uint, paymentRef string, periodStart time.Time, now time.Time) (*models.Subscription, error)
}

// UsageDelta is one metering event applied to a usage period record.
type UsageDelta struct {
	Links        int64
	Files        int64
	StorageBytes int64
	Features     map[string]int64
}

// UsageRepository defines the interface for usage period records. Increment
// must be a single atomic upsert-and-add; read-modify-write is forbidden
// (lost updates under concurrent metering).
type UsageRepository interface {
	Increment(userID uint, periodStart time.Time, delta UsageDelta) error
	GetByUserAndPeriod(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error)
	ListByUserID(userID uint) ([]models.UsagePeriodRecord, error)
}

// InvoiceRepository defines the interface for invoice persistence.
type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	Update(invoice *models.Invoice) error
	GetByID(id uint) (*models.Invoice, error)
	ListByUserID(userID uint) ([]models.Invoice, error)
	// MarkPaidIfUnsettled settles the invoice with a conditional UPDATE so the
	// first of two concurrent payments wins. Returns the rows changed: 0 means
	// the invoice was missing or not in a payable status.
	MarkPaidIfUnsettled(id uint, paymentRef string, now time.Time) (int64, error)
	// HasMonthlyInvoice reports whether a usage invoice already exists for the
	// user and period; the sweep uses it to stay idempotent.
	HasMonthlyInvoice(userID uint, periodStart time.Time) (bool, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Plan         PlanRepository
	Link         LinkRepository
	Subscription SubscriptionRepository
	Usage        UsageRepository
	Invoice      InvoiceRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Plan:         NewPlanRepository(db),
		Link:         NewLinkRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Usage:        NewUsageRepository(db),
		Invoice:      NewInvoiceRepository(db),
	}
}
