package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput             = "DROPLET_BAD_INPUT"
	ServiceErrorInstallationNotFound = "DROPLET_INSTALLATION_NOT_FOUND"
	ServiceErrorCredentialMismatch   = "DROPLET_CREDENTIAL_MISMATCH"
	ServiceErrorCredentialRequired   = "DROPLET_CREDENTIAL_REQUIRED"
	ServiceErrorInvalidTransition    = "DROPLET_INVALID_TRANSITION"
	ServiceErrorExchangeFailed       = "DROPLET_EXCHANGE_FAILED"
	ServiceErrorRegistrationFailed   = "DROPLET_REGISTRATION_FAILED"
	ServiceErrorRateLimited          = "DROPLET_RATE_LIMITED"
	ServiceErrorPlatformUnavailable  = "DROPLET_PLATFORM_UNAVAILABLE"
	ServiceErrorInternal             = "DROPLET_INTERNAL_ERROR"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "installation not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorInstallationNotFound)
	case strings.Contains(msg, "credential mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryAuthz, ServiceErrorCredentialMismatch)
	case strings.Contains(msg, "durable credential"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorCredentialRequired)
	case strings.Contains(msg, "status transition"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorInvalidTransition)
	case strings.Contains(msg, "exchange"):
		return newServiceError(err.Error(), goerrors.CategoryExternal, ServiceErrorExchangeFailed)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorInstallationNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorCredentialMismatch
	case goerrors.CategoryConflict:
		return ServiceErrorInvalidTransition
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorPlatformUnavailable
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
