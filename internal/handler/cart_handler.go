package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartLineRequest struct {
	Quantity int64 `json:"quantity"`
}

// /cart, /cart/lines/{id}, /cart/merge を登録
func (h *CartHandler) RegisterRoutes(e *echo.Echo, identity echo.MiddlewareFunc) {
	g := e.Group("/cart")
	g.Use(identity)

	g.GET("", h.getCart)
	g.POST("/lines", h.addLine)
	g.PATCH("/lines/:id", h.updateLine)
	g.DELETE("/lines/:id", h.removeLine)
	g.POST("/merge", h.merge)
}

func (h *CartHandler) getCart(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Get(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addLine(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddCartLineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.AddLine(c.Request().Context(), owner, req.ProductID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) updateLine(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpdateCartLineRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateLine(c.Request().Context(), owner, itemID, req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// 無い明細でも204
func (h *CartHandler) removeLine(c echo.Context) error {
	owner, ok := middleware.Owner(c)
	if !ok {
		return unauthorized(c)
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.RemoveLine(c.Request().Context(), owner, itemID); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ログイン直後にゲストのカートを取り込む。JWTとX-Session-IDの両方が要る。
func (h *CartHandler) merge(c echo.Context) error {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		return unauthorized(c)
	}
	guestSessionID, ok := middleware.GuestSessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: middleware.SessionHeader + " is required"})
	}

	out, err := h.uc.MergeGuestIntoUser(c.Request().Context(), accountID, guestSessionID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
