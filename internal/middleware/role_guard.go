package middleware

import (
	"net/http"

	"printshop/internal/domain/model"

	"github.com/labstack/echo/v4"
)

//contextに入っているroleを確認します。

// STAFF以上（STAFF/ADMIN）だけ許可
func StaffRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawRole := c.Get(CtxUserRoleKey)
			role, ok := rawRole.(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			if !model.Role(role).IsStaff() {
				return c.JSON(http.StatusForbidden, errorJSON("staff only"))
			}

			return next(c)
		}
	}
}

// ADMINだけ許可
func AdminRoleGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawRole := c.Get(CtxUserRoleKey)
			role, ok := rawRole.(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//STAFFは拒否、ADMINだけ許可
			if model.Role(role) != model.RoleAdmin {
				return c.JSON(http.StatusForbidden, errorJSON("admin only"))
			}

			return next(c)
		}
	}
}
