package router

import (
	"github.com/ManuelReschke/CartFox/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Payment provider webhooks (signature-verified in the controllers,
	// so no CSRF or rate limiting on these paths; providers retry on 5xx)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
	app.Post("/webhooks/razorpay", controllers.HandleRazorpayWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
