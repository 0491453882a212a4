package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestServiceErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{
			name:     "installation not found",
			err:      ErrInstallationNotFound,
			category: goerrors.CategoryNotFound,
			textCode: ServiceErrorInstallationNotFound,
			status:   http.StatusNotFound,
		},
		{
			name:     "credential mismatch",
			err:      ErrCredentialMismatch,
			category: goerrors.CategoryAuthz,
			textCode: ServiceErrorCredentialMismatch,
			status:   http.StatusForbidden,
		},
		{
			name:     "credential required",
			err:      fmt.Errorf("%w: installation %q", ErrCredentialRequired, "inst-1"),
			category: goerrors.CategoryBadInput,
			textCode: ServiceErrorCredentialRequired,
			status:   http.StatusBadRequest,
		},
		{
			name:     "invalid transition",
			err:      fmt.Errorf("%w: active -> failed", ErrInvalidInstallationStatusTransition),
			category: goerrors.CategoryConflict,
			textCode: ServiceErrorInvalidTransition,
			status:   http.StatusConflict,
		},
		{
			name:     "exchange failure",
			err:      stderrors.New("core: token exchange returned an empty credential"),
			category: goerrors.CategoryExternal,
			textCode: ServiceErrorExchangeFailed,
			status:   http.StatusBadGateway,
		},
		{
			name:     "rate limited",
			err:      stderrors.New("fluid: shop throttled the call"),
			category: goerrors.CategoryRateLimit,
			textCode: ServiceErrorRateLimited,
			status:   http.StatusTooManyRequests,
		},
		{
			name:     "generic validation",
			err:      stderrors.New("core: installation id is required"),
			category: goerrors.CategoryBadInput,
			textCode: ServiceErrorBadInput,
			status:   http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := serviceErrorMapper(tc.err)
			if mapped == nil {
				t.Fatalf("expected a mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
			if mapped.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, mapped.Code)
			}
		})
	}
}

func TestServiceErrorMapper_PreservesExistingEnvelope(t *testing.T) {
	source := goerrors.New("exchange rejected", goerrors.CategoryAuth).WithTextCode("UPSTREAM_CODE")
	mapped := serviceErrorMapper(source)
	if mapped.TextCode != "UPSTREAM_CODE" {
		t.Fatalf("expected the upstream text code to survive, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusUnauthorized {
		t.Fatalf("expected the envelope to fill the status code, got %d", mapped.Code)
	}
}

func TestServiceMethods_MapErrorsToStableServiceCodes(t *testing.T) {
	ctx := context.Background()
	svc, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.GetInstallation(ctx, "   ")
	if err == nil {
		t.Fatalf("expected a validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ServiceErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}

	_, err = svc.GetInstallation(ctx, "inst-missing")
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ServiceErrorInstallationNotFound {
		t.Fatalf("expected installation not found code, got %q", richErr.TextCode)
	}
}
