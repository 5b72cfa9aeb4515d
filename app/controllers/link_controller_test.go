package controllers

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/quota"
	"github.com/snipfox/snipfox/internal/pkg/shortcode"
	"github.com/snipfox/snipfox/internal/pkg/subscription"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

type memLinkRepo struct {
	countByUser map[uint]int64
	countByIP   map[string]int64
	created     []*models.Link
}

func (m *memLinkRepo) Create(link *models.Link) error {
	m.created = append(m.created, link)
	return nil
}

func (m *memLinkRepo) CreateWithinQuota(link *models.Link, limit *int64) (int64, error) {
	used := m.countByIP[link.OwnerIP]
	if link.UserID != nil {
		used = m.countByUser[*link.UserID]
	}
	if limit != nil && used >= *limit {
		return used, repository.ErrQuotaExceeded
	}
	m.created = append(m.created, link)
	return used, nil
}

func (m *memLinkRepo) GetByCode(code string) (*models.Link, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memLinkRepo) CountByUserID(userID uint) (int64, error) { return m.countByUser[userID], nil }
func (m *memLinkRepo) CountByOwnerIP(ip string) (int64, error)  { return m.countByIP[ip], nil }
func (m *memLinkRepo) GetByUserID(userID uint, offset, limit int) ([]models.Link, error) {
	var out []models.Link
	for _, link := range m.created {
		if link.UserID != nil && *link.UserID == userID {
			out = append(out, *link)
		}
	}
	return out, nil
}
func (m *memLinkRepo) Count() (int64, error) { return int64(len(m.created)), nil }

type memSubRepo struct {
	active map[uint]*models.Subscription
}

func (m *memSubRepo) Create(sub *models.Subscription) error          { return nil }
func (m *memSubRepo) CreateExclusive(sub *models.Subscription) error { return nil }
func (m *memSubRepo) Update(sub *models.Subscription) error          { return nil }
func (m *memSubRepo) GetByID(id uint) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memSubRepo) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	if sub, ok := m.active[userID]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (m *memSubRepo) ListByUserID(userID uint) ([]models.Subscription, error) { return nil, nil }
func (m *memSubRepo) SwitchPlan(userID uint, newPlanID uint, now time.Time) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memSubRepo) ActivateEnterprise(userID uint, paymentRef string, periodStart time.Time, now time.Time) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

type memPlanRepo struct {
	byCode map[string]*models.Plan
	byID   map[uint]*models.Plan
}

func (m *memPlanRepo) GetByID(id uint) (*models.Plan, error) {
	if plan, ok := m.byID[id]; ok {
		return plan, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (m *memPlanRepo) GetByCode(code string) (*models.Plan, error) {
	if plan, ok := m.byCode[code]; ok {
		return plan, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (m *memPlanRepo) ListActive() ([]models.Plan, error) { return nil, nil }

type memUserRepo struct {
	byToken map[string]*models.User
}

func (m *memUserRepo) Create(user *models.User) error { return nil }
func (m *memUserRepo) GetByID(id uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memUserRepo) GetByEmail(email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memUserRepo) GetByActivationToken(token string) (*models.User, error) {
	if user, ok := m.byToken[token]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}
func (m *memUserRepo) Update(user *models.User) error               { return nil }
func (m *memUserRepo) ListActiveEnterprise() ([]models.User, error) { return nil, nil }
func (m *memUserRepo) Count() (int64, error)                        { return 0, nil }

type memUsageRepo struct {
	err error
}

func (m *memUsageRepo) Increment(userID uint, periodStart time.Time, delta repository.UsageDelta) error {
	return m.err
}
func (m *memUsageRepo) GetByUserAndPeriod(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error) {
	return nil, gorm.ErrRecordNotFound
}
func (m *memUsageRepo) ListByUserID(userID uint) ([]models.UsagePeriodRecord, error) {
	return nil, nil
}

func ctrlPlans() *memPlanRepo {
	free := &models.Plan{ID: 1, Code: models.PLAN_FREE, LinkLimit: planLimit(2)}
	enterprise := &models.Plan{ID: 4, Code: models.PLAN_ENTERPRISE}
	return &memPlanRepo{
		byCode: map[string]*models.Plan{
			models.PLAN_FREE:       free,
			models.PLAN_ENTERPRISE: enterprise,
		},
		byID: map[uint]*models.Plan{1: free, 4: enterprise},
	}
}

func planLimit(n int64) *int64 { return &n }

func identityApp(identity usercontext.UserContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", identity)
		return c.Next()
	})
	return app
}

func TestHandleShorten_QuotaDeniedBeforeUpload(t *testing.T) {
	links := &memLinkRepo{countByIP: map[string]int64{"203.0.113.9": 2}}
	linkController = &LinkController{
		repos:     &repository.Repositories{Link: links},
		resolver:  quota.NewResolver(links, &memSubRepo{}, ctrlPlans()),
		allocator: shortcode.NewAllocator(links),
		meter:     usagemeter.NewMeter(&memUsageRepo{}),
	}

	app := identityApp(usercontext.UserContext{ClientIP: "203.0.113.9"})
	app.Post("/shorten", HandleShorten)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/shorten", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// the denial fires before the file is handled, so nothing reaches
	// object storage and no row is inserted
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "quota_exceeded")
	assert.Empty(t, links.created)
}

func TestHandleShorten_MeteringFailureDoesNotFailRequest(t *testing.T) {
	links := &memLinkRepo{countByUser: map[uint]int64{}}
	subs := &memSubRepo{active: map[uint]*models.Subscription{
		7: {UserID: 7, PlanID: 4, Status: models.SubscriptionActive},
	}}
	linkController = &LinkController{
		repos:     &repository.Repositories{Link: links},
		resolver:  quota.NewResolver(links, subs, ctrlPlans()),
		allocator: shortcode.NewAllocator(links),
		meter:     usagemeter.NewMeter(&memUsageRepo{err: errors.New("usage store down")}),
	}

	app := identityApp(usercontext.UserContext{UserID: 7, IsLoggedIn: true, Class: models.CLASS_ENTERPRISE})
	app.Post("/shorten", HandleShorten)

	req := httptest.NewRequest(fiber.MethodPost, "/shorten",
		strings.NewReader(`{"target_url":"https://example.com/docs"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Len(t, links.created, 1)
	assert.NotEmpty(t, links.created[0].Code)
}

func TestHandleActivateEnterprise_NoPendingSubscription(t *testing.T) {
	users := &memUserRepo{byToken: map[string]*models.User{
		"tok-1": {ID: 9, Class: models.CLASS_ENTERPRISE},
	}}
	authController = &AuthController{
		repos:  &repository.Repositories{User: users},
		ledger: subscription.NewLedger(&memSubRepo{}, ctrlPlans()),
	}

	app := fiber.New()
	app.Post("/activate", HandleActivateEnterprise)

	req := httptest.NewRequest(fiber.MethodPost, "/activate",
		strings.NewReader(`{"token":"tok-1","payment_reference":"txn-9"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "no pending subscription")
}

var _ repository.LinkRepository = (*memLinkRepo)(nil)
var _ repository.SubscriptionRepository = (*memSubRepo)(nil)
var _ repository.PlanRepository = (*memPlanRepo)(nil)
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.UsageRepository = (*memUsageRepo)(nil)
