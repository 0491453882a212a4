package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

func newGuardContext(t *testing.T, authorization string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/dashboard", nil)
	if authorization != "" {
		req.Header.Set(echo.HeaderAuthorization, authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("installation_id")
	c.SetParamValues("inst-1")
	return c, rec
}

func TestRequireInstallation_AttachesTenant(t *testing.T) {
	service := newFakeAuthenticator()
	service.add(core.Installation{InstallationID: "inst-1", ShopDomain: "acme.example"}, "dit_durable_1")
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "Bearer dit_durable_1")
	handled := false
	next := func(c echo.Context) error {
		handled = true
		installation, ok := InstallationFromContext(c)
		if !ok || installation.InstallationID != "inst-1" {
			t.Fatalf("expected installation on context, got ok=%v %+v", ok, installation)
		}
		return nil
	}

	if err := RequireInstallation(guard, "")(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !handled {
		t.Fatalf("expected next handler to run")
	}
}

func TestRequireInstallation_RejectsWrongCredential(t *testing.T) {
	service := newFakeAuthenticator()
	service.add(core.Installation{InstallationID: "inst-1"}, "dit_durable_1")
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "Bearer dit_wrong")
	next := func(c echo.Context) error {
		t.Fatalf("next handler must not run")
		return nil
	}

	err := RequireInstallation(guard, "")(next)(c)
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryAuthz {
		t.Fatalf("expected authz rejection, got %v", err)
	}
}

func TestRequireInstallation_RejectsForeignCredential(t *testing.T) {
	service := newFakeAuthenticator()
	service.add(core.Installation{InstallationID: "inst-1"}, "dit_durable_1")
	service.add(core.Installation{InstallationID: "inst-2"}, "dit_durable_2")
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "Bearer dit_durable_2")
	next := func(echo.Context) error {
		t.Fatalf("next handler must not run")
		return nil
	}

	err := RequireInstallation(guard, "")(next)(c)
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another tenant's credential, got %v", err)
	}
}

func TestRequireInstallation_RejectsMissingHeader(t *testing.T) {
	service := newFakeAuthenticator()
	service.add(core.Installation{InstallationID: "inst-1"}, "dit_durable_1")
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "")
	err := RequireInstallation(guard, "")(func(echo.Context) error { return nil })(c)
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing header, got %v", err)
	}
}

func TestOptionalInstallation_PassesThroughWithoutHeader(t *testing.T) {
	service := newFakeAuthenticator()
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "")
	handled := false
	next := func(c echo.Context) error {
		handled = true
		if _, ok := InstallationFromContext(c); ok {
			t.Fatalf("expected no installation on context")
		}
		return nil
	}

	if err := OptionalInstallation(guard, "")(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if !handled {
		t.Fatalf("expected next handler to run")
	}
}

func TestOptionalInstallation_AttachesMatchingTenant(t *testing.T) {
	service := newFakeAuthenticator()
	service.add(core.Installation{InstallationID: "inst-1", ShopDomain: "acme.example"}, "dit_durable_1")
	guard := NewGuard(service, nil)

	c, _ := newGuardContext(t, "Bearer dit_durable_1")
	next := func(c echo.Context) error {
		installation, ok := InstallationFromContext(c)
		if !ok || installation.ShopDomain != "acme.example" {
			t.Fatalf("expected tenant on context, got ok=%v %+v", ok, installation)
		}
		return nil
	}

	if err := OptionalInstallation(guard, "")(next)(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
}

func TestBearerToken_ParsesScheme(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "standard scheme", in: "Bearer dit_abc", want: "dit_abc"},
		{name: "case insensitive scheme", in: "bearer dit_abc", want: "dit_abc"},
		{name: "padded value", in: "Bearer   dit_abc  ", want: "dit_abc"},
		{name: "missing scheme", in: "dit_abc", want: ""},
		{name: "empty header", in: "", want: ""},
		{name: "scheme without value", in: "Bearer ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := bearerToken(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
