package httpapi

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/gofiber/fiber/v2"
)

const userLocalsKey = "user"

const unauthorizedMessage = "Un-authorized"

// requireAuth gates protected routes. A missing Authorization header is 401;
// a bad token, an unknown subject or a token replayed from another origin is
// 403. On success the user is stored in Locals for CurrentUser.
func (s *HTTPServer) requireAuth(c *fiber.Ctx) error {
	header := c.Get(common.AuthorizationHeaderName)
	if header == "" {
		return fiber.NewError(fiber.StatusUnauthorized, unauthorizedMessage)
	}

	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, common.BearerScheme) || strings.TrimSpace(token) == "" {
		return fiber.NewError(fiber.StatusForbidden, unauthorizedMessage)
	}

	origin := clientOrigin(c)
	user, err := s.authorizer.Authorize(c.UserContext(), strings.TrimSpace(token), origin)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrTokenExpired):
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer error="invalid_token", error_description="token expired"`)
		return fiber.NewError(fiber.StatusForbidden, unauthorizedMessage)
	case errors.Is(err, common.ErrOriginMismatch):
		s.logger.Warn(c.UserContext(), "access token presented from another origin", "origin", origin)
		return fiber.NewError(fiber.StatusForbidden, unauthorizedMessage)
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return fiber.NewError(fiber.StatusForbidden, unauthorizedMessage)
	default:
		return err
	}

	c.Locals(userLocalsKey, user)
	return c.Next()
}

// CurrentUser returns the user attached by the auth middleware, or nil on
// unprotected routes.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userLocalsKey).(*models.User)
	return user
}

// RequireRole must run after the auth middleware. Users with any other role
// get 403.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return fiber.NewError(fiber.StatusUnauthorized, unauthorizedMessage)
		}
		if !slices.Contains(roles, user.Role) {
			return fiber.NewError(fiber.StatusForbidden, "Forbidden")
		}
		return c.Next()
	}
}

// accessLog logs one line per request. Errors are rendered here so the
// logged status is the one the client receives.
func (s *HTTPServer) accessLog(c *fiber.Ctx) error {
	start := time.Now()

	if chainErr := c.Next(); chainErr != nil {
		if err := c.App().ErrorHandler(c, chainErr); err != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	s.logger.Info(c.UserContext(), "request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start),
		"request_id", c.Locals("requestid"),
		"origin", clientOrigin(c),
	)
	return nil
}
