package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/snipfox/snipfox/app/controllers"
	"github.com/snipfox/snipfox/internal/pkg/constants"
	"github.com/snipfox/snipfox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIv1Route)

	// Links: creation is open to anonymous callers (IP-keyed free quota)
	v1.Post(constants.ShortenRoute, controllers.HandleShorten)
	v1.Get(constants.StatsRoute, controllers.HandleStats)
	v1.Get(constants.UserLinksRoute, middleware.RequireAuth, controllers.HandleUserLinks)

	// Auth
	v1.Post(constants.RegisterRoute, controllers.HandleRegister)
	v1.Post(constants.RegisterEnterpriseRoute, controllers.HandleRegisterEnterprise)
	v1.Post(constants.LoginRoute, controllers.HandleLogin)
	v1.Post(constants.LogoutRoute, controllers.HandleLogout)
	v1.Post(constants.ActivateEnterpriseRoute, controllers.HandleActivateEnterprise)

	// Plans and subscriptions
	v1.Get(constants.PlansRoute, controllers.HandleListPlans)
	v1.Post(constants.PurchaseRoute, middleware.RequireAuth, controllers.HandlePurchase)
	v1.Put(constants.SwitchPlanRoute, middleware.RequireAuth, controllers.HandleSwitchPlan)
	v1.Delete(constants.CancelSubscriptionRoute, middleware.RequireAuth, controllers.HandleCancelSubscription)
	v1.Get(constants.SubscriptionRoute, middleware.RequireAuth, controllers.HandleSubscriptionHistory)
	v1.Get(constants.UserQuotaRoute, controllers.HandleUserQuota)

	// Billing
	v1.Get(constants.BillingUsageRoute, middleware.RequireAuth, controllers.HandleBillingUsage)
	v1.Get(constants.BillingCalculateRoute, middleware.RequireAuth, controllers.HandleBillingCalculate)
	v1.Post(constants.BillingGenerateRoute, middleware.RequireAuth, controllers.HandleGenerateInvoice)
	v1.Get(constants.BillingInvoicesRoute, middleware.RequireAuth, controllers.HandleListInvoices)
	v1.Post(constants.BillingPayRoute, middleware.RequireAuth, controllers.HandlePayInvoice)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
