package constants

// Static route constants
const (
	PublicRoute   = "/"
	RedirectRoute = "/:code"

	APIRoute   = "/api"
	APIv1Route = "/v1"

	ShortenRoute = "/shorten"
	StatsRoute   = "/stats/:code"

	RegisterRoute           = "/auth/register"
	RegisterEnterpriseRoute = "/auth/register/enterprise"
	LoginRoute              = "/auth/login"
	LogoutRoute             = "/auth/logout"
	ActivateEnterpriseRoute = "/auth/enterprise/activate"

	PlansRoute              = "/plans"
	SubscriptionRoute       = "/subscriptions"
	PurchaseRoute           = "/subscriptions/purchase"
	SwitchPlanRoute         = "/subscriptions/switch"
	CancelSubscriptionRoute = "/subscriptions/cancel"
	UserQuotaRoute          = "/user/quota"
	UserLinksRoute          = "/user/links"

	BillingUsageRoute     = "/billing/usage"
	BillingCalculateRoute = "/billing/calculate"
	BillingGenerateRoute  = "/billing/generate-invoice"
	BillingInvoicesRoute  = "/billing/invoices"
	BillingPayRoute       = "/billing/invoices/:id/pay"
)
