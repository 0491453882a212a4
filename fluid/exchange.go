package fluid

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-droplet/core"
)

// ExchangeClient trades the short-lived token carried by an installed event
// for the durable per-installation credential. The exchange is attempted once
// per install event; retry pressure comes from platform redelivery, not from
// a loop here.
type ExchangeClient struct {
	client *Client
}

func NewExchangeClient(client *Client) *ExchangeClient {
	return &ExchangeClient{client: client}
}

// ExchangeInstallToken fetches the installation detail from the shop's host
// and extracts the durable credential. A missing shop domain or installation
// id means no URL can be derived, which is the one condition reported as not
// attemptable; any HTTP error status is a hard failure.
func (c *ExchangeClient) ExchangeInstallToken(ctx context.Context, req core.ExchangeTokenRequest) (core.ExchangeTokenResult, error) {
	if c == nil || c.client == nil {
		return core.ExchangeTokenResult{}, fluidInternal("fluid: exchange client requires a platform client", nil)
	}

	shopDomain := strings.TrimSpace(req.ShopDomain)
	installationID := strings.TrimSpace(req.InstallationID)
	installToken := strings.TrimSpace(req.InstallToken)
	if shopDomain == "" {
		return core.ExchangeTokenResult{}, fmt.Errorf("%w: shop domain is required", core.ErrExchangeNotAttemptable)
	}
	if installationID == "" {
		return core.ExchangeTokenResult{}, fmt.Errorf("%w: installation id is required", core.ErrExchangeNotAttemptable)
	}
	if installToken == "" {
		return core.ExchangeTokenResult{}, fmt.Errorf("%w: install token is required", core.ErrExchangeNotAttemptable)
	}

	res, err := c.client.call(ctx, platformCall{
		Method:     http.MethodGet,
		ShopDomain: shopDomain,
		Path:       "/api/company/droplet_installations/" + url.PathEscape(installationID),
		Token:      installToken,
		Bucket:     bucketInstallations,
	})
	if err != nil {
		return core.ExchangeTokenResult{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.ExchangeTokenResult{}, statusError(
			"token exchange",
			res.StatusCode,
			core.ServiceErrorExchangeFailed,
			map[string]any{"installation_id": installationID},
		)
	}

	var payload map[string]any
	if err := decodeResponse(res.Body, &payload); err != nil {
		return core.ExchangeTokenResult{}, err
	}

	token := durableTokenFromPayload(payload)
	if token == "" {
		return core.ExchangeTokenResult{}, statusError(
			"token exchange",
			http.StatusBadGateway,
			core.ServiceErrorExchangeFailed,
			map[string]any{
				"installation_id": installationID,
				"cause":           "response carries no authentication token",
			},
		)
	}

	metadata := map[string]any{"status_code": res.StatusCode}
	if requestID := headerValue(res.Headers, "x-request-id"); requestID != "" {
		metadata["request_id"] = requestID
	}
	return core.ExchangeTokenResult{
		AuthenticationToken: token,
		Metadata:            metadata,
	}, nil
}

// durableTokenFromPayload reads the nested installation object first and only
// then the envelope root, matching the two response shapes the platform has
// shipped for this endpoint.
func durableTokenFromPayload(payload map[string]any) string {
	if nested, ok := payload["droplet_installation"].(map[string]any); ok {
		if token := readString(nested["authentication_token"]); token != "" {
			return token
		}
	}
	return readString(payload["authentication_token"])
}

var _ core.TokenExchanger = (*ExchangeClient)(nil)
