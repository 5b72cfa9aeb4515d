package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/snipfox/snipfox/app/models"
	"github.com/snipfox/snipfox/app/repository"
	"github.com/snipfox/snipfox/internal/pkg/apperr"
	"github.com/snipfox/snipfox/internal/pkg/billing"
	"github.com/snipfox/snipfox/internal/pkg/mail"
	"github.com/snipfox/snipfox/internal/pkg/subscription"
	"github.com/snipfox/snipfox/internal/pkg/usercontext"
)

// AuthController serves registration, login and enterprise activation.
type AuthController struct {
	repos  *repository.Repositories
	ledger *subscription.Ledger
	engine *billing.Engine
}

var authController *AuthController

// InitializeAuthController wires the auth controller with the global repositories.
func InitializeAuthController() {
	repos := repository.GetGlobalRepositories()
	authController = &AuthController{
		repos:  repos,
		ledger: subscription.NewLedger(repos.Subscription, repos.Plan),
		engine: billing.NewEngine(repos.Usage, repos.Invoice),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type activateRequest struct {
	Token            string `json:"token"`
	PaymentReference string `json:"payment_reference"`
}

// HandleRegister creates an individual account. Individuals are active
// immediately and start on the free plan.
func HandleRegister(c *fiber.Ctx) error {
	ctrl := authController

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	user, err := models.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		return apperr.Respond(c, apperr.Validation(err.Error()))
	}

	if err := ctrl.repos.User.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Respond(c, apperr.Conflict("email is already registered"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	sub, err := ctrl.ledger.AssignInitialPlan(user.ID, models.PLAN_FREE)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	if err := loginSession(c, user); err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":         user,
		"subscription": sub,
	})
}

// HandleRegisterEnterprise creates an enterprise account. The account and its
// subscription stay pending_payment until the registration fee is settled; the
// fee invoice is issued right here.
func HandleRegisterEnterprise(c *fiber.Ctx) error {
	ctrl := authController

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}
	if req.Company == "" {
		return apperr.Respond(c, apperr.Validation("company is required for enterprise accounts"))
	}

	user, err := models.CreateEnterpriseUser(req.Username, req.Email, req.Password, req.Company)
	if err != nil {
		return apperr.Respond(c, apperr.Validation(err.Error()))
	}

	if err := ctrl.repos.User.Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Respond(c, apperr.Conflict("email is already registered"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	sub, err := ctrl.ledger.AssignInitialPlan(user.ID, models.PLAN_ENTERPRISE)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	plan, err := ctrl.repos.Plan.GetByCode(models.PLAN_ENTERPRISE)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	invoice, err := ctrl.engine.IssueRegistrationFee(user.ID, plan)
	if err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	// Best effort: the token also comes back in the response
	go func(email, token string) {
		body := fmt.Sprintf(
			"<p>Welcome to SnipFox!</p>"+
				"<p>Settle the registration fee and activate your account with this token:</p>"+
				"<p><strong>%s</strong></p>", token)
		_ = mail.SendMail(email, "Activate your SnipFox enterprise account", body)
	}(user.Email, user.ActivationToken)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":             user,
		"subscription":     sub,
		"activation_token": user.ActivationToken,
		"registration_fee": fiber.Map{
			"invoice_number": invoice.Number,
			"amount":         invoice.Amount,
			"status":         invoice.Status,
		},
	})
}

// HandleLogin authenticates by email and password and starts a session.
// Pending enterprise accounts may log in; they just cannot create links until
// activated.
func HandleLogin(c *fiber.Ctx) error {
	ctrl := authController

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}

	user, err := ctrl.repos.User.GetByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		return apperr.Respond(c, apperr.Unauthorized("wrong email or password"))
	}
	if user.Status == models.STATUS_SUSPENDED {
		return apperr.Respond(c, apperr.Forbidden("account is suspended"))
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := ctrl.repos.User.Update(user); err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	if err := loginSession(c, user); err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}

	return c.JSON(fiber.Map{
		"user": user,
	})
}

// HandleLogout ends the caller's session.
func HandleLogout(c *fiber.Ctx) error {
	if err := logoutSession(c); err != nil {
		return apperr.Respond(c, apperr.Internal(err))
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

// HandleActivateEnterprise settles the registration fee. The subscription and
// the account go active, the current usage period is seeded and the fee
// invoice is marked paid, all in one transaction.
func HandleActivateEnterprise(c *fiber.Ctx) error {
	ctrl := authController

	var req activateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Respond(c, apperr.Validation("invalid request body"))
	}
	if req.PaymentReference == "" {
		return apperr.Respond(c, apperr.Validation("payment_reference is required"))
	}

	user, err := ctrl.repos.User.GetByActivationToken(req.Token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Respond(c, apperr.NotFound("unknown activation token"))
		}
		return apperr.Respond(c, apperr.Internal(err))
	}

	sub, err := ctrl.ledger.Activate(user.ID, req.PaymentReference)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return apperr.Respond(c, apperr.NotFound("account has no pending subscription"))
		case errors.Is(err, repository.ErrActiveExists):
			return apperr.Respond(c, apperr.Conflict("account already has an active subscription"))
		default:
			return apperr.Respond(c, apperr.Internal(err))
		}
	}

	return c.JSON(fiber.Map{
		"message":      "account activated",
		"subscription": sub,
	})
}

// currentUser loads the authenticated account for the request.
func currentUser(c *fiber.Ctx, repos *repository.Repositories) (*models.User, error) {
	identity := usercontext.GetUserContext(c)
	if !identity.IsLoggedIn {
		return nil, apperr.Unauthorized("login required")
	}
	user, err := repos.User.GetByID(identity.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}
