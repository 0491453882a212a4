package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Authenticator is the slice of droplet core behavior the guard needs.
type Authenticator interface {
	GetInstallationByToken(ctx context.Context, installationID string, token string) (core.Installation, error)
}

var _ Authenticator = (*core.Service)(nil)

// Guard authenticates tenant REST calls against the stored durable
// credential. A wrong credential reads the same no matter which part failed
// to match; only the missing-installation case is distinguishable.
type Guard struct {
	service Authenticator
	log     core.Logger
}

func NewGuard(service Authenticator, logger core.Logger) *Guard {
	return &Guard{service: service, log: logger}
}

// Authenticate resolves the installation named by the route and compares the
// bearer credential. Missing installation surfaces as not found, a
// present-but-wrong credential as a mismatch with no further detail.
func (g *Guard) Authenticate(ctx context.Context, installationID string, bearer string) (core.Installation, error) {
	if g == nil || g.service == nil {
		return core.Installation{}, authError(
			"auth: guard requires a core service",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			core.ServiceErrorInternal,
		)
	}
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return core.Installation{}, authError(
			"auth: bearer credential is required",
			goerrors.CategoryAuth,
			http.StatusUnauthorized,
			core.ServiceErrorCredentialRequired,
		)
	}
	return g.service.GetInstallationByToken(ctx, installationID, bearer)
}

// AuthenticateOptional attaches the tenant when the credential matches and
// passes the request through unauthenticated otherwise. Only infrastructure
// failures propagate.
func (g *Guard) AuthenticateOptional(ctx context.Context, installationID string, bearer string) (core.Installation, bool, error) {
	if g == nil || g.service == nil {
		return core.Installation{}, false, authError(
			"auth: guard requires a core service",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			core.ServiceErrorInternal,
		)
	}
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return core.Installation{}, false, nil
	}

	installation, err := g.service.GetInstallationByToken(ctx, installationID, bearer)
	if err != nil {
		if isPassThroughError(err) {
			g.logger().Debug("optional authentication passed through",
				"installation_id", strings.TrimSpace(installationID),
			)
			return core.Installation{}, false, nil
		}
		return core.Installation{}, false, err
	}
	return installation, true, nil
}

func (g *Guard) logger() core.Logger {
	if g != nil && g.log != nil {
		return g.log
	}
	return glog.Ensure(nil)
}

func isPassThroughError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound:
		return true
	default:
		return false
	}
}

func authError(message string, category goerrors.Category, code int, textCode string) error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}
