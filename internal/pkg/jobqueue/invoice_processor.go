package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/billing"
	"github.com/snipfox/snipfox/internal/pkg/mail"
)

// processGenerateInvoiceJob prices the given period for one enterprise user
// and persists a pending invoice. The job is idempotent: if an invoice for the
// user and period already exists (a previous attempt got that far), it is a
// no-op success.
func (q *Queue) processGenerateInvoiceJob(ctx context.Context, job *Job) error {
	payload, err := GenerateInvoiceJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid generate_invoice payload: %w", err)
	}

	periodStart, err := time.Parse(time.RFC3339, payload.PeriodStart)
	if err != nil {
		return fmt.Errorf("invalid period_start %q: %w", payload.PeriodStart, err)
	}

	repos := repository.GetGlobalRepositories()

	exists, err := repos.Invoice.HasMonthlyInvoice(payload.UserID, periodStart)
	if err != nil {
		return fmt.Errorf("failed to check for existing invoice: %w", err)
	}
	if exists {
		log.Infof("[JobQueue] Invoice for user %d period %s already exists, skipping", payload.UserID, payload.PeriodStart)
		return nil
	}

	engine := billing.NewEngine(repos.Usage, repos.Invoice)
	invoice, err := engine.GenerateInvoice(payload.UserID, periodStart)
	if err != nil {
		return fmt.Errorf("failed to generate invoice for user %d: %w", payload.UserID, err)
	}

	log.Infof("[JobQueue] Generated invoice %s for user %d (amount: %s)", invoice.Number, payload.UserID, invoice.Amount.StringFixed(2))

	// Notification is a separate job so a flaky SMTP server never fails invoicing
	mailPayload := SendInvoiceMailJobPayload{InvoiceID: invoice.ID, UserID: payload.UserID}
	if _, err := q.EnqueueJob(JobTypeSendInvoiceMail, mailPayload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue invoice mail for %s: %v", invoice.Number, err)
	}

	return nil
}

// processSendInvoiceMailJob sends the notification for a freshly issued invoice.
func (q *Queue) processSendInvoiceMailJob(ctx context.Context, job *Job) error {
	payload, err := SendInvoiceMailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid send_invoice_mail payload: %w", err)
	}

	repos := repository.GetGlobalRepositories()

	invoice, err := repos.Invoice.GetByID(payload.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to load invoice %d: %w", payload.InvoiceID, err)
	}
	user, err := repos.User.GetByID(payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", payload.UserID, err)
	}

	return mail.SendInvoiceNotification(user.Email, invoice)
}
