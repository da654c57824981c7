package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

func (s *HTTPServer) health(c *fiber.Ctx) error {
	return success(c, nil, "OK")
}

func (s *HTTPServer) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	user, tokens, err := s.users.Login(c.UserContext(), req.Email, req.Password, clientOrigin(c))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password")
		}
		return err
	}

	return success(c, fiber.Map{
		"user":         user,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	}, "Login Successful!")
}

func (s *HTTPServer) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	user, err := s.users.Register(c.UserContext(), services.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, common.ErrEmailAlreadyExists) {
			return fiber.NewError(fiber.StatusBadRequest, "Email already exists")
		}
		return err
	}

	s.logger.Info(c.UserContext(), "Registered", "user_id", user.ID)
	return success(c, fiber.Map{"user": user}, "Registration successful")
}

func (s *HTTPServer) refreshToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Refresh token is required")
	}

	tokens, err := s.users.Refresh(c.UserContext(), req.Token, clientOrigin(c))
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenInvalid) ||
			errors.Is(err, common.ErrRefreshTokenExpired) ||
			errors.Is(err, common.ErrOriginMismatch) {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid refresh token")
		}
		return err
	}

	return success(c, tokens, "Tokens generated successfully")
}

func (s *HTTPServer) logout(c *fiber.Ctx) error {
	var req tokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := s.users.Logout(c.UserContext(), CurrentUser(c).ID, req.Token); err != nil {
		return err
	}

	return success(c, fiber.Map{}, "Logout Successfully")
}

func (s *HTTPServer) me(c *fiber.Ctx) error {
	return success(c, fiber.Map{"user": CurrentUser(c)}, "OK")
}

func (s *HTTPServer) changePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	err := s.users.ChangePassword(c.UserContext(), CurrentUser(c).ID, req.CurrentPassword, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrInvalidCurrentPassword):
		return fiber.NewError(fiber.StatusBadRequest, "Current password is incorrect")
	case errors.Is(err, common.ErrorNotFound):
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	default:
		return err
	}

	return success(c, fiber.Map{}, "Password changed successfully")
}

func (s *HTTPServer) getUser(c *fiber.Ctx) error {
	user, err := s.users.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return err
	}
	return success(c, fiber.Map{"user": user}, "OK")
}
