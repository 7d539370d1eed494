package api

import (
	"errors"

	"github.com/Southclaws/fault/ftag"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mini-leebee/leebee"
)

// Error codes besides the engine error kinds.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

// EngineError answers with the status matching the kind of err.
func EngineError(c *fiber.Ctx, err error) error {
	kind := leebee.KindOf(err)
	return Error(c, Status(kind), string(kind), err.Error(), nil)
}

// Status maps an error kind to an HTTP status.
func Status(kind ftag.Kind) int {
	switch kind {
	case ftag.NotFound:
		return fiber.StatusNotFound
	case ftag.InvalidArgument:
		return fiber.StatusBadRequest
	case leebee.ResourceExhausted:
		return fiber.StatusTooManyRequests
	case leebee.FailedPrecondition:
		return fiber.StatusConflict
	case ftag.Cancelled:
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		ret := make(map[string]string)
		for _, e := range validationErrors {
			ret[e.Field()] = e.Tag()
		}
		return ret
	}
	return nil
}

// errorHandler answers errors that no handler turned into a response.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	return Error(c, code, CodeServiceError, message, nil)
}
