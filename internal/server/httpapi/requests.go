package httpapi

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

var specialCharacter = regexp.MustCompile(`[\W_]`)

// parseBody decodes a JSON body into out. An empty body leaves out untouched
// so validation reports the missing fields.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

func passwordRules(required string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(required),
		validation.Length(8, 255).Error("Password must be between 8 and 255 characters"),
		validation.Match(specialCharacter).Error("Password must contain at least one special character"),
	}
}

// equalsOrEmpty accepts an empty value, otherwise the value must equal str.
func equalsOrEmpty(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != "" && s != str {
			return errors.New("The passwords do not match")
		}
		return nil
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid Email Address"),
		),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

type registerRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (r *registerRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid Email Address"),
		),
		validation.Field(&r.Name,
			validation.Required.Error("Name is required"),
			validation.Length(1, 255),
		),
		validation.Field(&r.Password, passwordRules("Please provide valid password")...),
		validation.Field(&r.PasswordConfirm, validation.By(equalsOrEmpty(r.Password))),
	)
}

type tokenRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required.Error("Current password is required")),
		validation.Field(&r.Password, passwordRules("New password is required")...),
		validation.Field(&r.PasswordConfirm,
			validation.Required.Error("Please confirm the Password"),
			validation.By(equalsOrEmpty(r.Password)),
		),
	)
}
