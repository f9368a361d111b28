package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 持ち主向けの注文API。注文は番号で指す。
type OrderHandler struct {
	orders   *usecase.OrderUsecase
	payments *usecase.PaymentUsecase
}

func NewOrderHandler(orders *usecase.OrderUsecase, payments *usecase.PaymentUsecase) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments}
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, identity echo.MiddlewareFunc) {
	g := e.Group("/orders")
	g.Use(identity)

	g.GET("/:number", h.get)
	g.POST("/:number/cancel", h.cancel)
	g.POST("/:number/payment-intent", h.retryPayment)
}

func (h *OrderHandler) get(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.orders.GetForOwner(c.Request().Context(), owner, c.Param("number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) cancel(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.orders.CancelForOwner(c.Request().Context(), owner, c.Param("number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) retryPayment(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.payments.RetryForOwner(c.Request().Context(), owner, c.Param("number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
