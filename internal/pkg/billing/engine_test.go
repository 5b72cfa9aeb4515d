package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
)

// fakeUsageRepo serves canned usage records keyed by (user, period).
type fakeUsageRepo struct {
	records map[uint]map[time.Time]*models.UsagePeriodRecord
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{records: map[uint]map[time.Time]*models.UsagePeriodRecord{}}
}

func (f *fakeUsageRepo) put(record *models.UsagePeriodRecord) {
	if f.records[record.UserID] == nil {
		f.records[record.UserID] = map[time.Time]*models.UsagePeriodRecord{}
	}
	f.records[record.UserID][record.PeriodStart] = record
}

func (f *fakeUsageRepo) Increment(userID uint, periodStart time.Time, delta repository.UsageDelta) error {
	return nil
}

func (f *fakeUsageRepo) GetByUserAndPeriod(userID uint, periodStart time.Time) (*models.UsagePeriodRecord, error) {
	if record, ok := f.records[userID][periodStart]; ok {
		return record, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsageRepo) ListByUserID(userID uint) ([]models.UsagePeriodRecord, error) {
	var out []models.UsagePeriodRecord
	for _, record := range f.records[userID] {
		out = append(out, *record)
	}
	return out, nil
}

// fakeInvoiceRepo stores invoices in memory.
type fakeInvoiceRepo struct {
	invoices []*models.Invoice
	nextID   uint
}

func (f *fakeInvoiceRepo) Create(invoice *models.Invoice) error {
	f.nextID++
	invoice.ID = f.nextID
	if invoice.Number == "" {
		invoice.Number = "test-invoice"
	}
	f.invoices = append(f.invoices, invoice)
	return nil
}

func (f *fakeInvoiceRepo) Update(invoice *models.Invoice) error {
	for i, inv := range f.invoices {
		if inv.ID == invoice.ID {
			f.invoices[i] = invoice
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) GetByID(id uint) (*models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) ListByUserID(userID uint) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range f.invoices {
		if inv.UserID == userID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

// MarkPaidIfUnsettled mirrors the real repository's conditional UPDATE: the
// settle happens only while the status is still payable.
func (f *fakeInvoiceRepo) MarkPaidIfUnsettled(id uint, paymentRef string, now time.Time) (int64, error) {
	for _, inv := range f.invoices {
		if inv.ID != id {
			continue
		}
		if inv.Status != models.InvoicePending && inv.Status != models.InvoiceOverdue {
			return 0, nil
		}
		inv.Status = models.InvoicePaid
		inv.PaymentReference = paymentRef
		inv.PaymentDate = &now
		return 1, nil
	}
	return 0, nil
}

func (f *fakeInvoiceRepo) HasMonthlyInvoice(userID uint, periodStart time.Time) (bool, error) {
	for _, inv := range f.invoices {
		if inv.UserID == userID && inv.Type == models.INVOICE_TYPE_MONTHLY_USAGE && inv.PeriodStart.Equal(periodStart) {
			return true, nil
		}
	}
	return false, nil
}

var testPeriod = time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)

func testRecord(t *testing.T, links, files, storage int64, features map[string]int64) *models.UsagePeriodRecord {
	t.Helper()
	record := &models.UsagePeriodRecord{
		UserID:        1,
		PeriodStart:   testPeriod,
		LinksCreated:  links,
		FilesUploaded: files,
		StorageBytes:  storage,
	}
	require.NoError(t, record.SetFeatureCounts(features))
	return record
}

func TestEngine_Calculate(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.put(testRecord(t, 10, 2, 2<<30, map[string]int64{"chatbot": 3}))

	engine := NewEngine(usage, &fakeInvoiceRepo{})

	breakdown, err := engine.Calculate(1, testPeriod)
	require.NoError(t, err)

	// 10 links x 0.10 + 2 files x 0.05 + 2 GB x 0.01 + 3 chatbot x 0.50
	assert.Equal(t, "2.62", breakdown.Total.StringFixed(2))

	byDescription := map[string]decimal.Decimal{}
	for _, line := range breakdown.Lines {
		byDescription[line.Description] = line.Amount
	}
	assert.Equal(t, "1.00", byDescription["Links created"].StringFixed(2))
	assert.Equal(t, "0.10", byDescription["Files uploaded"].StringFixed(2))
	assert.Equal(t, "0.02", byDescription["Storage (GB)"].StringFixed(2))
	assert.Equal(t, "1.50", byDescription["Feature: chatbot"].StringFixed(2))
}

func TestEngine_Calculate_RoundsEachLineHalfUp(t *testing.T) {
	usage := newFakeUsageRepo()
	// 1.5 GB x 0.01 = 0.015 -> 0.02 after per-line rounding
	usage.put(testRecord(t, 0, 0, 3<<29, nil))

	engine := NewEngine(usage, &fakeInvoiceRepo{})

	breakdown, err := engine.Calculate(1, testPeriod)
	require.NoError(t, err)
	assert.Equal(t, "0.02", breakdown.Total.StringFixed(2))
}

func TestEngine_Calculate_UnpricedFeatureIsFree(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.put(testRecord(t, 0, 0, 0, map[string]int64{"mystery": 100}))

	engine := NewEngine(usage, &fakeInvoiceRepo{})

	breakdown, err := engine.Calculate(1, testPeriod)
	require.NoError(t, err)
	assert.Equal(t, "0.00", breakdown.Total.StringFixed(2))
}

func TestEngine_Calculate_NoRecord(t *testing.T) {
	engine := NewEngine(newFakeUsageRepo(), &fakeInvoiceRepo{})

	_, err := engine.Calculate(1, testPeriod)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEngine_GenerateInvoice(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.put(testRecord(t, 10, 2, 2<<30, map[string]int64{"chatbot": 3}))
	invoices := &fakeInvoiceRepo{}

	engine := NewEngine(usage, invoices)

	invoice, err := engine.GenerateInvoice(1, testPeriod)
	require.NoError(t, err)

	assert.Equal(t, models.INVOICE_TYPE_MONTHLY_USAGE, invoice.Type)
	assert.Equal(t, models.InvoicePending, invoice.Status)
	assert.Equal(t, "2.62", invoice.Amount.StringFixed(2))
	assert.True(t, invoice.PeriodStart.Equal(testPeriod))
	assert.True(t, invoice.PeriodEnd.Equal(testPeriod.AddDate(0, 1, 0)))
	assert.NotEmpty(t, invoice.UsageSnapshot)

	// the snapshot is frozen: later usage must not change the invoice
	usage.put(testRecord(t, 99, 0, 0, nil))
	stored, err := invoices.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.62", stored.Amount.StringFixed(2))
}

func TestEngine_IssueRegistrationFee(t *testing.T) {
	invoices := &fakeInvoiceRepo{}
	fixed := time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(newFakeUsageRepo(), invoices, WithClock(func() time.Time { return fixed }))

	plan := &models.Plan{Code: models.PLAN_ENTERPRISE, Price: decimal.NewFromFloat(49.99)}
	invoice, err := engine.IssueRegistrationFee(1, plan)
	require.NoError(t, err)

	assert.Equal(t, models.INVOICE_TYPE_REGISTRATION_FEE, invoice.Type)
	assert.Equal(t, "49.99", invoice.Amount.StringFixed(2))
	assert.True(t, invoice.PeriodStart.Equal(testPeriod))
}

func TestEngine_MarkPaid(t *testing.T) {
	usage := newFakeUsageRepo()
	usage.put(testRecord(t, 1, 0, 0, nil))
	invoices := &fakeInvoiceRepo{}
	engine := NewEngine(usage, invoices)

	invoice, err := engine.GenerateInvoice(1, testPeriod)
	require.NoError(t, err)

	paid, err := engine.MarkPaid(invoice.ID, "txn-123")
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, paid.Status)
	assert.Equal(t, "txn-123", paid.PaymentReference)
	assert.NotNil(t, paid.PaymentDate)

	// second payment is rejected, the first reference wins
	_, err = engine.MarkPaid(invoice.ID, "txn-456")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	stored, err := invoices.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "txn-123", stored.PaymentReference)
}

func TestEngine_MarkPaid_CancelledInvoice(t *testing.T) {
	invoices := &fakeInvoiceRepo{}
	engine := NewEngine(newFakeUsageRepo(), invoices)

	invoice := &models.Invoice{
		UserID: 1,
		Type:   models.INVOICE_TYPE_MONTHLY_USAGE,
		Status: models.InvoiceCancelled,
	}
	require.NoError(t, invoices.Create(invoice))

	// the conditional settle skips non-payable statuses instead of forcing
	// the row into paid
	_, err := engine.MarkPaid(invoice.ID, "txn-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyPaid)

	stored, err := invoices.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, stored.Status)
	assert.Empty(t, stored.PaymentReference)
}

func TestEngine_MarkPaid_UnknownInvoice(t *testing.T) {
	engine := NewEngine(newFakeUsageRepo(), &fakeInvoiceRepo{})

	_, err := engine.MarkPaid(42, "txn-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
