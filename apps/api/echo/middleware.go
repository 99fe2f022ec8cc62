package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/system"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets teachers and admins through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin || claims.IsTeacher {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// maintenanceMiddleware answers 503 to non-admin users while maintenance mode is on.
func maintenanceMiddleware(mnt *system.Maintenance) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if mnt == nil {
			return next
		}
		return func(ctx echo.Context) error {
			if claims, err := getContextClaims(ctx); err == nil && claims.IsAdmin {
				return next(ctx)
			}
			state, err := mnt.Status()
			if err != nil {
				return errors.Wrap(err, "reading maintenance status")
			}
			if !state.Enabled {
				return next(ctx)
			}
			if state.RetryAfter > 0 {
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(state.RetryAfter))
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, state.Message)
		}
	}
}
