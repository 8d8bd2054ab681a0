package handler

import (
	"net/http"
	"strconv"

	"printshop/internal/config"
	"printshop/internal/middleware"
	"printshop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /pickup-points の公開APIと管理API
type PickupPointHandler struct {
	uc *usecase.PickupPointUsecase
}

func NewPickupPointHandler(uc *usecase.PickupPointUsecase) *PickupPointHandler {
	return &PickupPointHandler{uc: uc}
}

func (h *PickupPointHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.GET("/pickup-points", h.list)

	admin := e.Group("/admin/pickup-points")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())
	admin.POST("", h.create)
	admin.PUT("/:id", h.update)
}

func (h *PickupPointHandler) list(c echo.Context) error {
	items, err := h.uc.ListActive(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *PickupPointHandler) create(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req usecase.PickupPointInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	p, err := h.uc.AdminCreate(c.Request().Context(), adminID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *PickupPointHandler) update(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req usecase.PickupPointInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	if err := h.uc.AdminUpdate(c.Request().Context(), adminID, id, req); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "pickup point updated"})
}
