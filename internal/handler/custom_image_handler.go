package handler

import (
	"io"
	"net/http"
	"strconv"

	"printshop/internal/config"
	"printshop/internal/middleware"
	"printshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /images と /admin/images をまとめる
type CustomImageHandler struct {
	uc *usecase.CustomImageUsecase
}

func NewCustomImageHandler(uc *usecase.CustomImageUsecase) *CustomImageHandler {
	return &CustomImageHandler{uc: uc}
}

type ImageAttachRequest struct {
	OrderItemID int64 `json:"order_item_id"`
}

type ImageApproveRequest struct {
	ProductID *int64 `json:"product_id"`
}

type ImageRejectRequest struct {
	Reason string `json:"reason"`
}

func (h *CustomImageHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/images")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("", h.upload)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.POST("/:id/attach", h.attach)
	g.DELETE("/:id", h.delete)

	//スタッフによる承認・却下
	admin := e.Group("/admin/images")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.StaffRoleGuard())
	admin.POST("/:id/approve", h.approve)
	admin.POST("/:id/reject", h.reject)
}

// multipart/form-data: file必須、product_id/order_item_idは任意
func (h *CustomImageHandler) upload(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file required"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid image file"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid image file"})
	}

	var productID *int64
	if v := c.FormValue("product_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
		}
		productID = &x
	}

	var orderItemID *int64
	if v := c.FormValue("order_item_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_item_id"})
		}
		orderItemID = &x
	}

	out, err := h.uc.Upload(c.Request().Context(), userID, usecase.UploadImageInput{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
		ProductID:   productID,
		OrderItemID: orderItemID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *CustomImageHandler) list(c echo.Context) error {
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

	var orderItemID *int64
	if v := c.QueryParam("order_item_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_item_id"})
		}
		orderItemID = &x
	}

	var productID *int64
	if v := c.QueryParam("product_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid product_id"})
		}
		productID = &x
	}

	var hasProduct *bool
	if v := c.QueryParam("has_product"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid has_product"})
		}
		hasProduct = &b
	}

	out, err := h.uc.List(c.Request().Context(), userID, getRoleFromContext(c), usecase.CustomImageListInput{
		Page:        page,
		Limit:       limit,
		OrderItemID: orderItemID,
		ProductID:   productID,
		HasProduct:  hasProduct,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CustomImageHandler) detail(c echo.Context) error {
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

func (h *CustomImageHandler) attach(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ImageAttachRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if req.OrderItemID <= 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_item_id"})
	}

	out, err := h.uc.Attach(c.Request().Context(), userID, id, req.OrderItemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CustomImageHandler) delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.Delete(c.Request().Context(), userID, getRoleFromContext(c), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "image deleted"})
}

func (h *CustomImageHandler) approve(c echo.Context) error {
	staffID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	//商品の紐づけは任意
	var req ImageApproveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Approve(c.Request().Context(), staffID, id, req.ProductID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CustomImageHandler) reject(c echo.Context) error {
	staffID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req ImageRejectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Reject(c.Request().Context(), staffID, id, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
