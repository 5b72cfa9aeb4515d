package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/apperr"
	"github.com/snipfox/snipfox/internal/pkg/billing"
	"github.com/snipfox/snipfox/internal/pkg/quota"
	"github.com/snipfox/snipfox/internal/pkg/subscription"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// SubscriptionController serves plan listing and the subscription lifecycle.
type SubscriptionController struct {
	repos    *repository.Repositories
	ledger   *subscription.Ledger
	resolver *quota.Resolver
	engine   *billing.Engine
}

var subscriptionController *SubscriptionController

// InitializeSubscriptionController wires the controller with the global repositories.
func InitializeSubscriptionController() {
	repos := repository.GetGlobalRepositories()
	subscriptionController = &SubscriptionController{
		repos:    repos,
		ledger:   subscription.NewLedger(repos.Subscription, repos.Plan),
		resolver: quota.NewResolver(repos.Link, repos.Subscription, repos.Plan),
		engine:   billing.NewEngine(repos.Usage, repos.Invoice),
	}
}

type planRequest struct {
	PlanCode string `json:"plan_code"`
}

// HandleListPlans returns every active plan with its limits and price.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := subscriptionController.repos.Plan.ListActive()
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandlePurchase creates a subscription for an account without one. Buying
// the enterprise plan leaves it pending and issues the registration fee.
func HandlePurchase(c *fiber.Ctx) error {
	ctrl := subscriptionController
	identity := usercontext.GetUserContext(c)

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	sub, err := ctrl.ledger.Purchase(identity.UserID, req.PlanCode)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.Respond(c, apperr.NotFound("unknown plan"))
		case errors.Is(err, repository.ErrActiveExists):
			return apperr.Respond(c, apperr.Conflict("account already has an active subscription"))
		default:
			return apperr.Respond(c, apperr.Internal(err))
		}
	}

	response := fiber.Map{"subscription": sub}

	if sub.Status == models.SubscriptionPendingPayment && sub.Plan != nil {
		invoice, err := ctrl.engine.IssueRegistrationFee(identity.UserID, sub.Plan)
		if err != nil {
			return apperr.Respond(c, apperr.Internal(err))
		}
		response["registration_fee"] = fiber.Map{
			"invoice_number": invoice.Number,
			"amount":         invoice.Amount,
			"status":         invoice.Status,
		}
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

// HandleSwitchPlan moves the account to another plan. Old and new rows change
// in one transaction; history keeps the cancelled row.
func HandleSwitchPlan(c *fiber.Ctx) error {
	ctrl := subscriptionController
	identity := usercontext.GetUserContext(c)

	var req planRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	sub, err := ctrl.ledger.Switch(identity.UserID, req.PlanCode)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSamePlan):
			return apperr.Respond(c, apperr.Conflict("subscription is already on this plan"))
		case errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.Respond(c, apperr.NotFound("no active subscription or unknown plan"))
		default:
			return apperr.Respond(c, apperr.Internal(err))
		}
	}

	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleCancelSubscription ends an enterprise subscription. Individuals
// cannot cancel; they switch plans instead so they never end up without one.
func HandleCancelSubscription(c *fiber.Ctx) error {
	ctrl := subscriptionController
	identity := usercontext.GetUserContext(c)

	sub, err := ctrl.ledger.Cancel(identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNotEnterprise):
			return apperr.Respond(c, apperr.Forbidden("only enterprise subscriptions can be cancelled"))
		case errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.Respond(c, apperr.NotFound("no active subscription"))
		default:
			return apperr.Respond(c, apperr.Internal(err))
		}
	}

	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleSubscriptionHistory returns every subscription row the account ever had.
func HandleSubscriptionHistory(c *fiber.Ctx) error {
	identity := usercontext.GetUserContext(c)

	subs, err := subscriptionController.ledger.History(identity.UserID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleUserQuota reports the caller's current quota standing: plan, live
// count, limit and remaining.
func HandleUserQuota(c *fiber.Ctx) error {
	ctrl := subscriptionController
	identity := usercontext.GetUserContext(c)

	decision, err := ctrl.resolver.Evaluate(identity)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	response := fiber.Map{
		"allowed": decision.Allowed,
		"quota":   decision.Snapshot,
	}
	if decision.Reason != "" {
		response["reason"] = decision.Reason
	}
	if decision.Plan != nil {
		response["plan"] = decision.Plan
	}

	return c.JSON(response)
}
