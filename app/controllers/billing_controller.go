package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/apperr"
	"github.com/snipfox/snipfox/internal/pkg/billing"
	"github.com/snipfox/snipfox/internal/pkg/mail"
	"github.com/snipfox/snipfox/internal/pkg/usagemeter"
)

// BillingController serves usage snapshots, price calculations and invoices.
// Usage-based billing applies to enterprise accounts only.
type BillingController struct {
	repos  *repository.Repositories
	meter  *usagemeter.Meter
	engine *billing.Engine
}

var billingController *BillingController

// InitializeBillingController wires the controller with the global repositories.
func InitializeBillingController() {
	repos := repository.GetGlobalRepositories()
	billingController = &BillingController{
		repos:  repos,
		meter:  usagemeter.NewMeter(repos.Usage),
		engine: billing.NewEngine(repos.Usage, repos.Invoice),
	}
}

type payRequest struct {
	PaymentReference string `json:"payment_reference"`
}

// requireEnterprise resolves the caller and rejects non-enterprise accounts.
func (ctrl *BillingController) requireEnterprise(c *fiber.Ctx) (uint, error) {
	user, err := currentUser(c, ctrl.repos)
	if err != nil {
		return 0, err
	}
	if !user.IsEnterprise() {
		return 0, apperr.Forbidden("usage-based billing applies to enterprise accounts only")
	}
	return user.ID, nil
}

// HandleBillingUsage returns the usage record for one period (default: the
// current month), or the full history with ?all=true.
func HandleBillingUsage(c *fiber.Ctx) error {
	ctrl := billingController

	userID, err := ctrl.requireEnterprise(c)
	if err != nil {
		return apperr.Respond(c, err)
	}

	if c.Query("all") == "true" {
		records, err := ctrl.meter.History(userID)
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		return c.JSON(fiber.Map{"usage": records})
	}

	periodStart, perr := parsePeriod(c.Query("period"))
	if perr != nil {
		return apperr.Respond(c, apperr.Validation(perr.Error()))
	}
	if periodStart.IsZero() {
		periodStart = ctrl.meter.CurrentPeriod()
	}

	record, err := ctrl.meter.Snapshot(userID, periodStart)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("no usage recorded for this period"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{"usage": record})
}

// HandleBillingCalculate prices a period without persisting anything.
func HandleBillingCalculate(c *fiber.Ctx) error {
	ctrl := billingController

	userID, err := ctrl.requireEnterprise(c)
	if err != nil {
		return apperr.Respond(c, err)
	}

	periodStart, perr := parsePeriod(c.Query("period"))
	if perr != nil {
		return apperr.Respond(c, apperr.Validation(perr.Error()))
	}
	if periodStart.IsZero() {
		periodStart = ctrl.meter.CurrentPeriod()
	}

	breakdown, err := ctrl.engine.Calculate(userID, periodStart)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("no usage recorded for this period"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(breakdown)
}

// HandleGenerateInvoice issues a pending invoice for a period, freezing the
// usage snapshot into it. Issuance does not close the period.
func HandleGenerateInvoice(c *fiber.Ctx) error {
	ctrl := billingController

	userID, err := ctrl.requireEnterprise(c)
	if err != nil {
		return apperr.Respond(c, err)
	}

	var req struct {
		Period string `json:"period"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	periodStart, perr := parsePeriod(req.Period)
	if perr != nil {
		return apperr.Respond(c, apperr.Validation(perr.Error()))
	}
	if periodStart.IsZero() {
		periodStart = ctrl.meter.CurrentPeriod()
	}

	exists, err := ctrl.repos.Invoice.HasMonthlyInvoice(userID, periodStart)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}
	if exists {
		return apperr.Respond(c, apperr.Conflict("an invoice for this period already exists"))
	}

	invoice, err := ctrl.engine.GenerateInvoice(userID, periodStart)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("no usage recorded for this period"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"invoice": invoice})
}

// HandleListInvoices returns the caller's invoices, newest first.
func HandleListInvoices(c *fiber.Ctx) error {
	ctrl := billingController

	user, err := currentUser(c, ctrl.repos)
	if err != nil {
		return apperr.Respond(c, err)
	}

	invoices, err := ctrl.repos.Invoice.ListByUserID(user.ID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{"invoices": invoices})
}

// HandlePayInvoice settles one of the caller's invoices. Paying twice is a
// conflict; the first payment wins.
func HandlePayInvoice(c *fiber.Ctx) error {
	ctrl := billingController

	user, err := currentUser(c, ctrl.repos)
	if err != nil {
		return apperr.Respond(c, err)
	}

	invoiceID, perr := strconv.ParseUint(c.Params("id"), 10, 32)
	if perr != nil {
		return apperr.Respond(c, apperr.Validation("invalid invoice id"))
	}

	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}
	if req.PaymentReference == "" {
		return apperr.Respond(c, apperr.Validation("payment_reference is required"))
	}

	invoice, err := ctrl.repos.Invoice.GetByID(uint(invoiceID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("invoice not found"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}
	if invoice.UserID != user.ID {
		return apperr.Respond(c, apperr.Forbidden("invoice belongs to another account"))
	}

	paid, err := ctrl.engine.MarkPaid(invoice.ID, req.PaymentReference)
	if err != nil {
		if errors.Is(err, billing.ErrAlreadyPaid) {
			return apperr.Respond(c, apperr.Conflict("invoice is already paid"))
		}
		// cancelled invoices cannot be paid; the conditional settle skips them
		return apperr.Respond(c, apperr.Conflict(err.Error()))
	}

	go func(email, number string, amount decimal.Decimal) {
		_ = mail.SendPaymentConfirmation(email, number, amount)
	}(user.Email, paid.Number, paid.Amount)

	return c.JSON(fiber.Map{"invoice": paid})
}
