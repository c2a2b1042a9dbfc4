package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

// RequireSuperuser lets only superusers through.
func RequireSuperuser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.User.IsSuperuser {
			return apperrors.NewForbidden("superuser required")
		}
		return c.Next()
	}
}
