package server

import (
	"net/http"

	"storefront/internal/handler"
	"storefront/internal/middleware"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Cart     *handler.CartHandler
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
	Webhook  *handler.WebhookHandler
	Admin    *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, jwtSecret string, h Handlers) {
	identity := middleware.Identity(jwtSecret)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Cart.RegisterRoutes(e, identity)
	h.Checkout.RegisterRoutes(e, identity)
	h.Order.RegisterRoutes(e, identity)
	h.Webhook.RegisterRoutes(e)
	h.Admin.RegisterRoutes(e, identity)
}
