package auth

import (
	"strings"

	"github.com/goliatone/go-droplet/core"
	"github.com/labstack/echo/v4"
)

// InstallationContextKey is where the guard middleware stores the
// authenticated installation on the echo context.
const InstallationContextKey = "droplet.installation"

const defaultInstallationParam = "installation_id"

// RequireInstallation rejects the request unless the bearer credential
// matches the installation named by the route param.
func RequireInstallation(guard *Guard, param string) echo.MiddlewareFunc {
	if strings.TrimSpace(param) == "" {
		param = defaultInstallationParam
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			installation, err := guard.Authenticate(
				c.Request().Context(),
				c.Param(param),
				bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)),
			)
			if err != nil {
				return err
			}
			c.Set(InstallationContextKey, installation)
			return next(c)
		}
	}
}

// OptionalInstallation attaches the tenant when the credential matches and
// lets the request through unauthenticated otherwise, which is how fresh
// installs reach the configuration form before they hold a credential.
func OptionalInstallation(guard *Guard, param string) echo.MiddlewareFunc {
	if strings.TrimSpace(param) == "" {
		param = defaultInstallationParam
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			installation, ok, err := guard.AuthenticateOptional(
				c.Request().Context(),
				c.Param(param),
				bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)),
			)
			if err != nil {
				return err
			}
			if ok {
				c.Set(InstallationContextKey, installation)
			}
			return next(c)
		}
	}
}

// InstallationFromContext reads the installation a guard middleware attached.
func InstallationFromContext(c echo.Context) (core.Installation, bool) {
	installation, ok := c.Get(InstallationContextKey).(core.Installation)
	return installation, ok
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
