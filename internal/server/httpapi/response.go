package httpapi

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

type envelope struct {
	Status  bool       `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func success(c *fiber.Ctx, data any, message string) error {
	return c.Status(fiber.StatusOK).JSON(envelope{Status: true, Message: message, Data: data})
}

// errorHandler is the single place errors become responses. *fiber.Error
// keeps its status and message, validation errors become 400 with per field
// messages and anything else is logged and hidden behind a generic 500.
func (s *HTTPServer) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := &errorBody{Message: "Something went wrong"}

	var verrs validation.Errors
	var ferr *fiber.Error
	switch {
	case errors.As(err, &verrs):
		status = fiber.StatusBadRequest
		body.Message = "Validation failed"
		body.Fields = make(map[string]string, len(verrs))
		for field, fieldErr := range verrs {
			if fieldErr != nil {
				body.Fields[field] = fieldErr.Error()
			}
		}
	case errors.As(err, &ferr):
		status = ferr.Code
		body.Message = ferr.Message
	default:
		s.logger.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
	}

	return c.Status(status).JSON(envelope{Status: false, Error: body})
}
