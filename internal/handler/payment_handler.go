package handler

import (
	"net/http"
	"strconv"

	"printshop/internal/config"
	"printshop/internal/domain/model"
	"printshop/internal/middleware"
	"printshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /payments と /admin/payments をまとめる
type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

type PaymentSubmitRequest struct {
	OrderID       int64  `json:"order_id"`
	ReferenceCode string `json:"reference_code"`
	PhoneNumber   string `json:"phone_number"`
}

type PaymentUpdateRequest struct {
	ReferenceCode *string `json:"reference_code"`
	PhoneNumber   *string `json:"phone_number"`
}

type PaymentVerifyRequest struct {
	Decision string `json:"decision"` // accept / reject
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/payments")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.submit)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)

	//注文の支払い状況照会
	o := e.Group("/orders")
	o.Use(middleware.AuthJWT(cfg))
	o.GET("/:id/payment-status", h.orderPaymentStatus)

	//スタッフによる検証
	admin := e.Group("/admin/payments")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.StaffRoleGuard())
	admin.POST("/:id/verify", h.verify)
}

func (h *PaymentHandler) submit(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req PaymentSubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Submit(c.Request().Context(), userID, usecase.SubmitPaymentInput{
		OrderID:       req.OrderID,
		ReferenceCode: req.ReferenceCode,
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *PaymentHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		page = p
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	var orderID *int64
	if v := c.QueryParam("order_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_id"})
		}
		orderID = &x
	}

	out, err := h.uc.List(c.Request().Context(), userID, getRoleFromContext(c), usecase.PaymentListInput{
		Page:    page,
		Limit:   limit,
		Status:  c.QueryParam("status"),
		OrderID: orderID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Get(c.Request().Context(), userID, getRoleFromContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) update(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req PaymentUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdatePending(c.Request().Context(), userID, id, usecase.UpdatePaymentInput{
		ReferenceCode: req.ReferenceCode,
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.DeletePending(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "payment deleted"})
}

func (h *PaymentHandler) orderPaymentStatus(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.OrderPaymentStatus(c.Request().Context(), userID, getRoleFromContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) verify(c echo.Context) error {
	staffID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req PaymentVerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Verify(c.Request().Context(), staffID, id, model.Decision(req.Decision))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
