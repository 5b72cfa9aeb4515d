package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/snipfox/snipfox/app/models"
)

// ErrSamePlan is returned by SwitchPlan when the target plan equals the
// currently active one.
var ErrSamePlan = errors.New("subscription already on this plan")

// ErrActiveExists is returned when the user already has an active or pending
// subscription that excludes the requested one.
var ErrActiveExists = errors.New("user already has an active subscription")

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// CreateExclusive inserts the subscription unless the user already has an
// active or pending row. The existence check runs FOR UPDATE inside the same
// transaction, so two concurrent purchases cannot both slip past it. Pending
// rows count too: they become active on fee settlement, and that activation
// must never find a second live subscription.
func (r *subscriptionRepository) CreateExclusive(sub *models.Subscription) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Subscription{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status IN ?", sub.UserID,
				[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPendingPayment}).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveExists
		}
		return tx.Create(sub).Error
	})
}

// Update saves an existing subscription row
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// GetByID retrieves a subscription by its ID with the plan preloaded
func (r *subscriptionRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Preload("Plan").First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByUserID retrieves the user's single active subscription
func (r *subscriptionRepository) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Preload("Plan").
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUserID returns the full subscription history, newest first
func (r *subscriptionRepository) ListByUserID(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// SwitchPlan cancels the current active subscription and inserts the new
// active row as one transaction. The active row is locked FOR UPDATE so a
// concurrent switch cannot leave the user with zero or two active rows.
func (r *subscriptionRepository) SwitchPlan(userID uint, newPlanID uint, now time.Time) (*models.Subscription, error) {
	var next *models.Subscription

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var current models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
			First(&current).Error; err != nil {
			return err
		}

		if current.PlanID == newPlanID {
			return ErrSamePlan
		}

		if err := current.TransitionTo(models.SubscriptionCancelled, now); err != nil {
			return err
		}
		if err := tx.Save(&current).Error; err != nil {
			return err
		}

		next = &models.Subscription{
			UserID:    userID,
			PlanID:    newPlanID,
			Status:    models.SubscriptionActive,
			StartedAt: &now,
		}
		return tx.Create(next).Error
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(next.ID)
}

// ActivateEnterprise settles the registration fee: the pending subscription
// goes active, the account goes active, the current usage period is seeded
// and the pending registration-fee invoice is marked paid, all or nothing.
// Fails with ErrActiveExists if another active row appeared in the meantime;
// flipping the pending row anyway would leave the user with two.
func (r *subscriptionRepository) ActivateEnterprise(userID uint, paymentRef string, periodStart time.Time, now time.Time) (*models.Subscription, error) {
	var activated *models.Subscription

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.SubscriptionPendingPayment).
			First(&sub).Error; err != nil {
			return err
		}

		var activeCount int64
		if err := tx.Model(&models.Subscription{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
			Count(&activeCount).Error; err != nil {
			return err
		}
		if activeCount > 0 {
			return ErrActiveExists
		}

		if err := sub.TransitionTo(models.SubscriptionActive, now); err != nil {
			return err
		}
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND status = ?", userID, models.STATUS_PENDING_PAYMENT).
			Updates(map[string]any{"status": models.STATUS_ACTIVE, "activation_token": ""})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		// seed an empty usage record for the current month
		seed := models.UsagePeriodRecord{
			UserID:        userID,
			PeriodStart:   periodStart,
			FeatureCounts: models.JSON("{}"),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		// settle the registration-fee invoice issued at enterprise signup
		var fee models.Invoice
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND type = ? AND status = ?", userID, models.INVOICE_TYPE_REGISTRATION_FEE, models.InvoicePending).
			First(&fee).Error
		if err == nil {
			if err := fee.MarkPaid(paymentRef, now); err != nil {
				return err
			}
			if err := tx.Save(&fee).Error; err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		activated = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(activated.ID)
}
