package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// 500にしたエラー本体。リクエストログで出す。
const CtxInternalErrorKey = "internal_error"

type ErrorResponse struct {
	Error string `json:"error"`
}

// 在庫不足は減らした数量で再試行できるように在庫数を返す
type StockErrorResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Available int64  `json:"available"`
}

// 注文は作られているので番号を返す（payment-intentで再試行できる）
type GatewayErrorResponse struct {
	Error       string `json:"error"`
	OrderNumber string `json:"order_number,omitempty"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	var (
		stockErr    *usecase.InsufficientStockError
		validErr    *usecase.ValidationError
		notFoundErr *usecase.NotFoundError
		conflictErr *usecase.ConflictError
		gatewayErr  *usecase.GatewayError
		sigErr      *usecase.SignatureError
	)
	switch {
	case errors.As(err, &stockErr):
		return c.JSON(http.StatusConflict, StockErrorResponse{
			Error:     "insufficient stock",
			ProductID: stockErr.ProductID,
			Available: stockErr.Available,
		})
	case errors.As(err, &validErr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: validErr.Message})
	case errors.As(err, &notFoundErr):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: conflictErr.Message})
	case errors.As(err, &gatewayErr):
		return c.JSON(http.StatusBadGateway, GatewayErrorResponse{Error: gatewayErr.Message, OrderNumber: gatewayErr.OrderNumber})
	case errors.As(err, &sigErr):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
	}

	//500
	c.Set(CtxInternalErrorKey, err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
}
