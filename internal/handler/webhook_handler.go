package handler

import (
	"io"
	"net/http"

	"storefront/internal/infra/payment"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type WebhookHandler struct {
	uc *usecase.WebhookReconciler
}

func NewWebhookHandler(uc *usecase.WebhookReconciler) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

type WebhookAck struct {
	Received bool                   `json:"received"`
	Outcome  usecase.WebhookOutcome `json:"outcome"`
}

// 認証は署名だけ。identityは付けない。
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payments", h.receive)
}

// 署名は生のbodyで検証するのでBindしない。
// 400は署名不正だけ。業務的に処理できなくても200で受け取る（再送させない）。
func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
	}

	res, err := h.uc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(payment.SignatureHeader))
	if err != nil {
		var sigErr *usecase.SignatureError
		if errors.As(err, &sigErr) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
		}
		// DB障害などは500で再送してもらう
		c.Set(CtxInternalErrorKey, err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, WebhookAck{Received: true, Outcome: res.Outcome})
}
