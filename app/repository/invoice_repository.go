package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create persists a new invoice
func (r *invoiceRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

// Update saves an existing invoice
func (r *invoiceRepository) Update(invoice *models.Invoice) error {
	return r.db.Save(invoice).Error
}

// GetByID retrieves an invoice by its numeric ID
func (r *invoiceRepository) GetByID(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.First(&invoice, id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkPaidIfUnsettled settles the invoice only while it is still payable.
// The status predicate in the UPDATE makes the first payment win under
// concurrency; a second caller changes zero rows.
func (r *invoiceRepository) MarkPaidIfUnsettled(id uint, paymentRef string, now time.Time) (int64, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id,
			[]models.InvoiceStatus{models.InvoicePending, models.InvoiceOverdue}).
		Updates(map[string]any{
			"status":            models.InvoicePaid,
			"payment_reference": paymentRef,
			"payment_date":      now,
		})
	return res.RowsAffected, res.Error
}

// HasMonthlyInvoice reports whether a usage invoice exists for the period
func (r *invoiceRepository) HasMonthlyInvoice(userID uint, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("user_id = ? AND type = ? AND period_start = ?",
			userID, models.INVOICE_TYPE_MONTHLY_USAGE, periodStart).
		Count(&count).Error
	return count > 0, err
}

// ListByUserID returns all invoices for a user, newest first
func (r *invoiceRepository) ListByUserID(userID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&invoices).Error
	return invoices, err
}
