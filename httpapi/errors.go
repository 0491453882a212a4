package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorPayload struct {
	Message  string `json:"message"`
	TextCode string `json:"text_code,omitempty"`
	Status   int    `json:"status"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// newErrorHandler renders every handler error as the droplet envelope.
// Rich errors carry their own status and text code; anything unclassified
// collapses to a generic 500 so internal detail stays in the log.
func newErrorHandler(log core.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		payload := envelopeFor(err)
		if payload.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", payload.Status,
				"error", err.Error(),
			)
		} else {
			log.Debug("request rejected",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", payload.Status,
				"text_code", payload.TextCode,
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(payload.Status)
			return
		}
		_ = c.JSON(payload.Status, errorResponse{Error: payload})
	}
}

func envelopeFor(err error) errorPayload {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		status := richErr.Code
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		message := strings.TrimSpace(richErr.Message)
		if status >= http.StatusInternalServerError {
			// internal detail stays in the log
			message = "An unexpected error occurred"
		}
		return errorPayload{
			Message:  message,
			TextCode: richErr.TextCode,
			Status:   status,
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		return errorPayload{
			Message: fmt.Sprintf("%v", httpErr.Message),
			Status:  httpErr.Code,
		}
	}

	return errorPayload{
		Message:  "An unexpected error occurred",
		TextCode: core.ServiceErrorInternal,
		Status:   http.StatusInternalServerError,
	}
}

func badRequestError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

// validateStruct folds validator failures into one bad-input envelope naming
// each offending field and the rule it broke.
func validateStruct(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return badRequestError("httpapi: request validation failed")
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fieldErr.StructField(), fieldErr.Tag()))
	}
	return badRequestError("httpapi: invalid request: " + strings.Join(parts, "; "))
}
