package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	Email        string                `json:"email"`
	Address      model.ShippingAddress `json:"address"`
	PromoCode    string                `json:"promo_code"`
	GiftOccasion string                `json:"gift_occasion"`
	GiftMessage  string                `json:"gift_message"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, identity echo.MiddlewareFunc) {
	e.POST("/checkout", h.checkout, identity)
}

// 注文を作って決済のclient_secretを返す
func (h *CheckoutHandler) checkout(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Checkout(c.Request().Context(), owner, usecase.CheckoutInput{
		Email:          req.Email,
		Address:        req.Address,
		PromoCode:      req.PromoCode,
		GiftOccasion:   req.GiftOccasion,
		GiftMessage:    req.GiftMessage,
		IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		var gwErr *usecase.GatewayError
		if errors.As(err, &gwErr) && out.Order.OrderNumber != "" {
			// 注文はpendingで残っている
			return c.JSON(http.StatusBadGateway, GatewayErrorResponse{Error: gwErr.Message, OrderNumber: out.Order.OrderNumber})
		}
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}
