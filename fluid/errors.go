package fluid

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
)

func fluidError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func fluidWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return fluidError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func fluidBadInput(message string, metadata map[string]any) error {
	return fluidError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.ServiceErrorBadInput,
		metadata,
	)
}

func fluidInternal(message string, metadata map[string]any) error {
	return fluidError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.ServiceErrorInternal,
		metadata,
	)
}

// statusError maps a non-2xx platform status onto the service error taxonomy.
// The response body stays out of the error so tenant data and credentials
// never leak into logs.
func statusError(operation string, statusCode int, textCode string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status_code"] = statusCode
	return fluidError(
		fmt.Sprintf("fluid: %s returned status %d", operation, statusCode),
		categoryForStatus(statusCode),
		statusCode,
		textCodeForStatus(statusCode, textCode),
		metadata,
	)
}

func categoryForStatus(statusCode int) goerrors.Category {
	switch {
	case statusCode == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case statusCode == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case statusCode == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case statusCode == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case statusCode >= 400 && statusCode < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func textCodeForStatus(statusCode int, fallback string) string {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return core.ServiceErrorRateLimited
	case statusCode >= 500:
		return core.ServiceErrorPlatformUnavailable
	default:
		return fallback
	}
}
