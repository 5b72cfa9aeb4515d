package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

type fakeSubRepo struct {
	created []*models.Subscription
	active  map[uint]*models.Subscription
	pending map[uint]*models.Subscription
	updated []*models.Subscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{
		active:  map[uint]*models.Subscription{},
		pending: map[uint]*models.Subscription{},
	}
}

func (f *fakeSubRepo) Create(sub *models.Subscription) error { return f.CreateExclusive(sub) }

// CreateExclusive mirrors the repository's guard: an active OR pending row
// blocks the insert.
func (f *fakeSubRepo) CreateExclusive(sub *models.Subscription) error {
	if _, ok := f.active[sub.UserID]; ok {
		return repository.ErrActiveExists
	}
	if _, ok := f.pending[sub.UserID]; ok {
		return repository.ErrActiveExists
	}
	f.created = append(f.created, sub)
	switch sub.Status {
	case models.SubscriptionActive:
		f.active[sub.UserID] = sub
	case models.SubscriptionPendingPayment:
		f.pending[sub.UserID] = sub
	}
	return nil
}

func (f *fakeSubRepo) Update(sub *models.Subscription) error {
	f.updated = append(f.updated, sub)
	return nil
}

func (f *fakeSubRepo) GetByID(id uint) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubRepo) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	if sub, ok := f.active[userID]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubRepo) ListByUserID(userID uint) ([]models.Subscription, error) { return nil, nil }

func (f *fakeSubRepo) SwitchPlan(userID uint, newPlanID uint, now time.Time) (*models.Subscription, error) {
	current, err := f.GetActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	if current.PlanID == newPlanID {
		return nil, repository.ErrSamePlan
	}
	if err := current.TransitionTo(models.SubscriptionCancelled, now); err != nil {
		return nil, err
	}
	next := &models.Subscription{UserID: userID, PlanID: newPlanID, Status: models.SubscriptionActive, StartedAt: &now}
	f.active[userID] = next
	return next, nil
}

// ActivateEnterprise mirrors the repository's transaction: the pending row
// goes active only when no other active row holds the slot.
func (f *fakeSubRepo) ActivateEnterprise(userID uint, paymentRef string, periodStart time.Time, now time.Time) (*models.Subscription, error) {
	sub, ok := f.pending[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if _, exists := f.active[userID]; exists {
		return nil, repository.ErrActiveExists
	}
	if err := sub.TransitionTo(models.SubscriptionActive, now); err != nil {
		return nil, err
	}
	delete(f.pending, userID)
	f.active[userID] = sub
	return sub, nil
}

type fakePlanRepo struct {
	plans map[string]*models.Plan
}

func (f *fakePlanRepo) GetByID(id uint) (*models.Plan, error) {
	for _, plan := range f.plans {
		if plan.ID == id {
			return plan, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePlanRepo) GetByCode(code string) (*models.Plan, error) {
	if plan, ok := f.plans[code]; ok {
		return plan, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePlanRepo) ListActive() ([]models.Plan, error) { return nil, nil }

func testPlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: map[string]*models.Plan{
		models.PLAN_FREE:       {ID: 1, Code: models.PLAN_FREE},
		models.PLAN_PRO:        {ID: 3, Code: models.PLAN_PRO},
		models.PLAN_ENTERPRISE: {ID: 4, Code: models.PLAN_ENTERPRISE},
	}}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, time.July, 15, 10, 0, 0, 0, time.UTC)

func TestLedger_AssignInitialPlan_Individual(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	sub, err := ledger.AssignInitialPlan(7, models.PLAN_FREE)
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.StartedAt)
	assert.True(t, sub.StartedAt.Equal(testNow))
}

func TestLedger_AssignInitialPlan_EnterprisePending(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	sub, err := ledger.AssignInitialPlan(7, models.PLAN_ENTERPRISE)
	require.NoError(t, err)

	// enterprise waits for the registration fee
	assert.Equal(t, models.SubscriptionPendingPayment, sub.Status)
	assert.Nil(t, sub.StartedAt)
}

func TestLedger_Purchase_ActiveExists(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	_, err := ledger.Purchase(7, models.PLAN_FREE)
	require.NoError(t, err)

	_, err = ledger.Purchase(7, models.PLAN_PRO)
	assert.ErrorIs(t, err, repository.ErrActiveExists)
}

func TestLedger_Activate(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	_, err := ledger.AssignInitialPlan(7, models.PLAN_ENTERPRISE)
	require.NoError(t, err)

	sub, err := ledger.Activate(7, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	require.NotNil(t, sub.StartedAt)
	assert.True(t, sub.StartedAt.Equal(testNow))

	// nothing left to activate
	_, err = ledger.Activate(7, "txn-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLedger_PendingEnterpriseBlocksSecondSubscription(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	// enterprise registration leaves the subscription pending; the account
	// can already log in at this point
	_, err := ledger.AssignInitialPlan(7, models.PLAN_ENTERPRISE)
	require.NoError(t, err)

	// a purchase before the fee is settled is rejected: activating the
	// pending row later would otherwise yield a second active subscription
	_, err = ledger.Purchase(7, models.PLAN_FREE)
	assert.ErrorIs(t, err, repository.ErrActiveExists)

	sub, err := ledger.Activate(7, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)

	activeRows := 0
	for _, s := range subs.created {
		if s.Status == models.SubscriptionActive {
			activeRows++
		}
	}
	assert.Equal(t, 1, activeRows)
}

func TestLedger_Purchase_UnknownPlan(t *testing.T) {
	ledger := NewLedger(newFakeSubRepo(), testPlanRepo())

	_, err := ledger.Purchase(7, "platinum")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLedger_Switch(t *testing.T) {
	subs := newFakeSubRepo()
	ledger := NewLedger(subs, testPlanRepo(), WithClock(fixedClock(testNow)))

	_, err := ledger.Purchase(7, models.PLAN_FREE)
	require.NoError(t, err)

	sub, err := ledger.Switch(7, models.PLAN_PRO)
	require.NoError(t, err)
	assert.Equal(t, uint(3), sub.PlanID)
	assert.Equal(t, models.SubscriptionActive, sub.Status)

	_, err = ledger.Switch(7, models.PLAN_PRO)
	assert.ErrorIs(t, err, repository.ErrSamePlan)
}

func TestLedger_Cancel_EnterpriseOnly(t *testing.T) {
	subs := newFakeSubRepo()
	plans := testPlanRepo()
	ledger := NewLedger(subs, plans, WithClock(fixedClock(testNow)))

	t.Run("individual cannot cancel", func(t *testing.T) {
		_, err := ledger.Purchase(7, models.PLAN_PRO)
		require.NoError(t, err)

		_, err = ledger.Cancel(7)
		assert.ErrorIs(t, err, ErrNotEnterprise)
	})

	t.Run("enterprise cancels", func(t *testing.T) {
		enterprise := plans.plans[models.PLAN_ENTERPRISE]
		subs.active[8] = &models.Subscription{
			UserID: 8, PlanID: enterprise.ID, Plan: enterprise,
			Status: models.SubscriptionActive,
		}

		sub, err := ledger.Cancel(8)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionCancelled, sub.Status)
		require.NotNil(t, sub.CancelledAt)
	})

	t.Run("no active subscription", func(t *testing.T) {
		_, err := ledger.Cancel(99)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}
