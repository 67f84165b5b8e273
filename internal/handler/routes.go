package handler

import "github.com/gofiber/fiber/v2"

// Routes binds the handlers to their paths. The middleware fields guard the route
// groups; each must be set.
type Routes struct {
	Health   *HealthHandler
	Accounts *AccountHandler
	QR       *QRHandler
	Payments *PaymentHandler
	Coupons  *CouponHandler
	Admin    *AdminHandler

	Bearer     fiber.Handler
	APIKey     fiber.Handler
	Throttle   fiber.Handler
	BulkPlan   fiber.Handler
	AdminOnly  fiber.Handler
	SuperAdmin fiber.Handler
}

// Register mounts every route on app.
func (r Routes) Register(app *fiber.App) {
	app.Get("/health", r.Health.Check)

	me := app.Group("/api/me", r.Bearer)
	me.Get("/", r.Accounts.Me)
	me.Post("/api-key", r.Accounts.GenerateAPIKey)

	qr := app.Group("/api/qr", r.Bearer)
	qr.Post("/generate", r.QR.Generate)
	qr.Post("/bulk", r.BulkPlan, r.QR.GenerateBulk)
	qr.Get("/", r.QR.List)
	qr.Get("/stats/overview", r.QR.Overview)
	qr.Get("/:id", r.QR.Get)
	qr.Put("/:id", r.QR.Update)
	qr.Delete("/:id", r.QR.Delete)

	payments := app.Group("/api/payments")
	payments.Get("/plans", r.Payments.Plans)
	payments.Post("/webhook", r.Payments.Webhook)
	payments.Post("/validate-coupon", r.Bearer, r.Payments.ValidateCoupon)
	payments.Post("/create-order", r.Bearer, r.Payments.CreateOrder)
	payments.Post("/verify", r.Bearer, r.Payments.Verify)
	payments.Get("/history", r.Bearer, r.Payments.History)
	payments.Get("/subscription", r.Bearer, r.Payments.Subscription)
	payments.Post("/cancel-subscription", r.Bearer, r.Payments.CancelSubscription)

	v1 := app.Group("/api/v1", r.APIKey, r.Throttle)
	v1.Post("/qr/generate", r.QR.APIGenerate)
	v1.Post("/qr/bulk-generate", r.QR.APIGenerateBulk)
	v1.Get("/qr", r.QR.APIList)
	v1.Get("/qr/:id", r.QR.APIGet)
	v1.Put("/qr/:id", r.QR.APIUpdate)
	v1.Delete("/qr/:id", r.QR.APIDelete)
	v1.Get("/stats", r.QR.APIStats)

	admin := app.Group("/api/admin", r.Bearer, r.AdminOnly)
	admin.Get("/coupons", r.Coupons.ListCoupons)
	admin.Get("/coupons/stats", r.Coupons.CouponStats)
	admin.Post("/coupons", r.SuperAdmin, r.Coupons.CreateCoupon)
	admin.Put("/coupons/:code", r.SuperAdmin, r.Coupons.UpdateCoupon)
	admin.Post("/coupons/:code/deactivate", r.SuperAdmin, r.Coupons.DeactivateCoupon)

	admin.Get("/users", r.Admin.ListUsers)
	admin.Get("/users/:id", r.Admin.GetUser)
	admin.Put("/users/:id/role", r.SuperAdmin, r.Admin.UpdateRole)
	admin.Put("/users/:id/subscription", r.Admin.UpdateSubscription)
	admin.Get("/payments", r.Admin.ListPayments)
}
