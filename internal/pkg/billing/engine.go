package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
)

// ErrAlreadyPaid is returned by MarkPaid when the invoice was settled before.
var ErrAlreadyPaid = errors.New("invoice is already paid")

var bytesPerGB = decimal.NewFromInt(1 << 30)

// Engine prices usage periods and issues immutable invoices from them.
type Engine struct {
	usage    repository.UsageRepository
	invoices repository.InvoiceRepository
	rates    RateTable
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRates overrides the rate table (tests).
func WithRates(rates RateTable) Option {
	return func(e *Engine) { e.rates = rates }
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a billing engine over the persistence layer.
func NewEngine(usage repository.UsageRepository, invoices repository.InvoiceRepository, opts ...Option) *Engine {
	e := &Engine{
		usage:    usage,
		invoices: invoices,
		rates:    DefaultRateTable(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// roundHalfUp rounds to two decimal places, halves away from zero. Charges
// are never negative, so this is round-half-up.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Calculate prices the usage record of one period. Each line item is rounded
// independently before the total is summed. Fails with
// gorm.ErrRecordNotFound when the period has no usage record.
func (e *Engine) Calculate(userID uint, periodStart time.Time) (*Breakdown, error) {
	record, err := e.usage.GetByUserAndPeriod(userID, periodStart)
	if err != nil {
		return nil, err
	}

	features := record.FeatureCountMap()
	breakdown := &Breakdown{
		UserID:      userID,
		PeriodStart: periodStart,
		PeriodEnd:   usagemeter.PeriodEnd(periodStart),
		Usage: UsageTotals{
			LinksCreated:  record.LinksCreated,
			FilesUploaded: record.FilesUploaded,
			StorageBytes:  record.StorageBytes,
			Features:      features,
		},
	}

	addLine := func(description string, quantity, rate decimal.Decimal) {
		amount := roundHalfUp(quantity.Mul(rate))
		breakdown.Lines = append(breakdown.Lines, LineItem{
			Description: description,
			Quantity:    quantity,
			Rate:        rate,
			Amount:      amount,
		})
	}

	addLine("Links created", decimal.NewFromInt(record.LinksCreated), e.rates.PerLink)
	addLine("Files uploaded", decimal.NewFromInt(record.FilesUploaded), e.rates.PerFile)

	storageGB := decimal.NewFromInt(record.StorageBytes).Div(bytesPerGB)
	addLine("Storage (GB)", storageGB, e.rates.PerStorageGB)

	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		addLine(fmt.Sprintf("Feature: %s", name), decimal.NewFromInt(features[name]), e.rates.FeatureRate(name))
	}

	total := decimal.Zero
	for _, line := range breakdown.Lines {
		total = total.Add(line.Amount)
	}
	breakdown.Total = total

	return breakdown, nil
}

// GenerateInvoice prices the period and persists a pending invoice carrying
// the frozen breakdown as its usage snapshot. Issuance does not close the
// period: later metering mutates the live record, never this snapshot.
func (e *Engine) GenerateInvoice(userID uint, periodStart time.Time) (*models.Invoice, error) {
	breakdown, err := e.Calculate(userID, periodStart)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		UserID:        userID,
		Type:          models.INVOICE_TYPE_MONTHLY_USAGE,
		PeriodStart:   breakdown.PeriodStart,
		PeriodEnd:     breakdown.PeriodEnd,
		Amount:        breakdown.Total,
		Status:        models.InvoicePending,
		UsageSnapshot: models.JSON(snapshot),
	}
	if err := e.invoices.Create(invoice); err != nil {
		return nil, err
	}

	return invoice, nil
}

// IssueRegistrationFee creates the one-time signup invoice for an enterprise
// account, priced at the plan price. The current month stands in as the
// period bounds.
func (e *Engine) IssueRegistrationFee(userID uint, plan *models.Plan) (*models.Invoice, error) {
	periodStart := usagemeter.CurrentMonth(e.now())

	invoice := &models.Invoice{
		UserID:      userID,
		Type:        models.INVOICE_TYPE_REGISTRATION_FEE,
		PeriodStart: periodStart,
		PeriodEnd:   usagemeter.PeriodEnd(periodStart),
		Amount:      plan.Price,
		Status:      models.InvoicePending,
	}
	if err := e.invoices.Create(invoice); err != nil {
		return nil, err
	}

	return invoice, nil
}

// MarkPaid settles a pending (or overdue) invoice. The repository applies a
// conditional update keyed on the payable statuses, so of two concurrent
// payments exactly one lands and keeps its reference; the loser gets
// ErrAlreadyPaid.
func (e *Engine) MarkPaid(invoiceID uint, paymentRef string) (*models.Invoice, error) {
	affected, err := e.invoices.MarkPaidIfUnsettled(invoiceID, paymentRef, e.now())
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		invoice, err := e.invoices.GetByID(invoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.Status == models.InvoicePaid {
			return nil, ErrAlreadyPaid
		}
		return nil, fmt.Errorf("invoice %s cannot be paid in status %s", invoice.Number, invoice.Status)
	}

	return e.invoices.GetByID(invoiceID)
}
