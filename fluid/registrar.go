package fluid

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-droplet/core"
)

const webhooksPath = "/api/company/webhooks"

// DefaultCatalog is the fixed set of platform events a droplet subscribes to.
// Order matters only for report readability; registration is per-entry.
func DefaultCatalog() []core.SubscriptionEntry {
	return []core.SubscriptionEntry{
		{Resource: "order", Event: "created"},
		{Resource: "order", Event: "updated"},
		{Resource: "order", Event: "completed"},
		{Resource: "order", Event: "shipped"},
		{Resource: "order", Event: "cancelled"},
		{Resource: "order", Event: "refunded"},
		{Resource: "product", Event: "created"},
		{Resource: "product", Event: "updated"},
		{Resource: "product", Event: "destroyed"},
		{Resource: "droplet", Event: "installed"},
		{Resource: "droplet", Event: "uninstalled"},
	}
}

// Registrar reconciles the catalog against the subscriptions the platform
// already holds for one shop. Re-running it is idempotent as long as the
// list call succeeds.
type Registrar struct {
	client  *Client
	catalog []core.SubscriptionEntry
}

func NewRegistrar(client *Client, catalog ...core.SubscriptionEntry) *Registrar {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Registrar{client: client, catalog: catalog}
}

// EnsureSubscriptions lists the remote subscriptions, skips catalog entries
// already active for the same (resource, event, url) triple, and registers
// the rest. Per-entry create failures land in the report, never in the
// returned error. A failed list call aborts with no creates: the remote list
// is the only dedupe source, so registering blind would mint duplicate
// subscriptions the platform never cleans up. A later re-run starts from a
// fresh list.
func (r *Registrar) EnsureSubscriptions(ctx context.Context, req core.EnsureSubscriptionsRequest) (core.RegistrationReport, error) {
	if r == nil || r.client == nil {
		return core.RegistrationReport{}, fluidInternal("fluid: registrar requires a platform client", nil)
	}

	shopDomain := strings.TrimSpace(req.ShopDomain)
	token := strings.TrimSpace(req.AuthenticationToken)
	callbackURL := strings.TrimSpace(req.CallbackURL)
	if shopDomain == "" {
		return core.RegistrationReport{}, fluidBadInput("fluid: shop domain is required", nil)
	}
	if token == "" {
		return core.RegistrationReport{}, fluidBadInput("fluid: authentication token is required", nil)
	}
	if callbackURL == "" {
		return core.RegistrationReport{}, fluidBadInput("fluid: callback url is required", nil)
	}

	report := core.RegistrationReport{}

	existing, err := r.listSubscriptions(ctx, shopDomain, token)
	if err != nil {
		r.client.logger().Warn("subscription list failed, registering nothing",
			"shop_domain", shopDomain,
			"error", err.Error(),
		)
		return core.RegistrationReport{}, err
	}

	active := make(map[string]struct{}, len(existing))
	for _, subscription := range existing {
		if !subscription.Active {
			continue
		}
		active[subscriptionKey(subscription.Resource, subscription.Event, subscription.URL)] = struct{}{}
	}

	for _, entry := range r.catalog {
		if _, ok := active[subscriptionKey(entry.Resource, entry.Event, callbackURL)]; ok {
			report.Skipped++
			continue
		}
		if err := r.createSubscription(ctx, shopDomain, token, entry, callbackURL); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Success++
	}
	return report, nil
}

func (r *Registrar) listSubscriptions(ctx context.Context, shopDomain string, token string) ([]core.RemoteSubscription, error) {
	res, err := r.client.call(ctx, platformCall{
		Method:     http.MethodGet,
		ShopDomain: shopDomain,
		Path:       webhooksPath,
		Token:      token,
		Bucket:     bucketWebhooks,
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError("subscription list", res.StatusCode, core.ServiceErrorRegistrationFailed, nil)
	}

	rows, err := decodeSubscriptionList(res.Body)
	if err != nil {
		return nil, err
	}
	subscriptions := make([]core.RemoteSubscription, 0, len(rows))
	for _, row := range rows {
		subscriptions = append(subscriptions, row.toRemoteSubscription())
	}
	return subscriptions, nil
}

func (r *Registrar) createSubscription(ctx context.Context, shopDomain string, token string, entry core.SubscriptionEntry, callbackURL string) error {
	res, err := r.client.call(ctx, platformCall{
		Method:     http.MethodPost,
		ShopDomain: shopDomain,
		Path:       webhooksPath,
		Token:      token,
		Bucket:     bucketWebhooks,
		Body: map[string]any{
			"webhook": map[string]any{
				"resource": entry.Resource,
				"event":    entry.Event,
				"url":      callbackURL,
				"active":   true,
			},
		},
	})
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(
			"subscription create",
			res.StatusCode,
			core.ServiceErrorRegistrationFailed,
			map[string]any{"resource": entry.Resource, "event": entry.Event},
		)
	}
	return nil
}

// subscriptionPayload tolerates the two list shapes the platform has served:
// a {"webhooks": [...]} envelope and a bare array.
type subscriptionPayload struct {
	ID       any    `json:"id"`
	UUID     string `json:"uuid"`
	Resource string `json:"resource"`
	Event    string `json:"event"`
	URL      string `json:"url"`
	Active   *bool  `json:"active"`
}

func (p subscriptionPayload) toRemoteSubscription() core.RemoteSubscription {
	id := readString(p.ID)
	if id == "" {
		id = strings.TrimSpace(p.UUID)
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return core.RemoteSubscription{
		ID:       id,
		Resource: strings.TrimSpace(p.Resource),
		Event:    strings.TrimSpace(p.Event),
		URL:      strings.TrimSpace(p.URL),
		Active:   active,
	}
}

func decodeSubscriptionList(body []byte) ([]subscriptionPayload, error) {
	var envelope struct {
		Webhooks []subscriptionPayload `json:"webhooks"`
	}
	if err := decodeResponse(body, &envelope); err == nil && envelope.Webhooks != nil {
		return envelope.Webhooks, nil
	}
	var rows []subscriptionPayload
	if err := decodeResponse(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func subscriptionKey(resource string, event string, callbackURL string) string {
	return core.SubscriptionEntry{Resource: resource, Event: event}.Key() + "|" + strings.TrimSpace(callbackURL)
}

var _ core.SubscriptionRegistrar = (*Registrar)(nil)
