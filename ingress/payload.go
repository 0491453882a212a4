package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-droplet/core"
)

type EventClass string

const (
	EventClassLifecycle EventClass = "lifecycle"
	EventClassResource  EventClass = "resource"
	EventClassUnknown   EventClass = "unknown"
)

const (
	LifecycleInstalled   = "installed"
	LifecycleUninstalled = "uninstalled"
)

// InboundRequest is one webhook HTTP call as the dispatcher sees it. Metadata
// carries transport-level extras (remote address, request id) the HTTP layer
// wants to keep with the request.
type InboundRequest struct {
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// InboundResult tells the HTTP layer how to answer. Accepted with status 200
// renders {"status":"ok"} regardless of whether routing handled or dropped
// the event; the metadata records what actually happened.
type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// LifecycleEvent is the normalized installed/uninstalled payload. The company
// object wins over the payload root when both carry fields; within the chosen
// scope keys resolve in a fixed fallback order because the platform has
// shipped the same event under several key names.
type LifecycleEvent struct {
	Event          string
	InstallationID string
	CompanyID      string
	CompanyName    string
	ShopDomain     string
	InstallToken   string
}

// ResourceEvent is the normalized product/order/customer/rep change payload.
// Payload holds the resource object itself, not the webhook envelope.
type ResourceEvent struct {
	Kind       core.ResourceKind
	EventType  string
	ResourceID string
	ShopDomain string
	Payload    map[string]any
}

// InboundEvent is the tagged classification result. Class selects which of
// Lifecycle or Resource is meaningful; Raw keeps the envelope for the ledger.
type InboundEvent struct {
	Class     EventClass
	Lifecycle LifecycleEvent
	Resource  ResourceEvent
	Raw       map[string]any
}

// ClassifyPayload parses and normalizes one webhook body. The resource field
// wins over the event string; unparseable JSON is the only error, a payload
// that matches nothing classifies as unknown so the caller can drop it
// without failing the request.
func ClassifyPayload(body []byte) (InboundEvent, error) {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return InboundEvent{}, ingressBadInput("ingress: payload is not valid JSON", map[string]any{
			"cause": err.Error(),
		})
	}

	eventType := strings.TrimSpace(strings.ToLower(firstString(raw, "event")))
	if resource := firstString(raw, "resource"); resource != "" {
		if kind, err := core.ParseResourceKind(resource); err == nil {
			return InboundEvent{
				Class:    EventClassResource,
				Resource: normalizeResourceEvent(raw, kind, eventType),
				Raw:      raw,
			}, nil
		}
	}

	switch eventType {
	case LifecycleInstalled, LifecycleUninstalled:
		return InboundEvent{
			Class:     EventClassLifecycle,
			Lifecycle: normalizeLifecycleEvent(raw, eventType),
			Raw:       raw,
		}, nil
	}
	return InboundEvent{Class: EventClassUnknown, Raw: raw}, nil
}

func normalizeLifecycleEvent(raw map[string]any, eventType string) LifecycleEvent {
	scope := companyScope(raw)
	return LifecycleEvent{
		Event:          eventType,
		InstallationID: firstString(scope, "droplet_installation_uuid", "installation_uuid", "installation_id"),
		CompanyID:      firstString(scope, "fluid_company_id", "company_id", "id"),
		CompanyName:    firstString(scope, "name", "company_name"),
		ShopDomain:     firstString(scope, "fluid_shop", "shop_domain", "shop"),
		InstallToken:   firstString(scope, "authentication_token", "install_token"),
	}
}

func normalizeResourceEvent(raw map[string]any, kind core.ResourceKind, eventType string) ResourceEvent {
	payload := raw
	if nested, ok := raw[string(kind)].(map[string]any); ok && len(nested) > 0 {
		payload = nested
	} else if nested, ok := raw["data"].(map[string]any); ok && len(nested) > 0 {
		payload = nested
	}
	if eventType == "" {
		// resource payloads without an event verb are treated as updates;
		// the mirror upsert is last-write-wins either way
		eventType = "updated"
	}
	shop := firstString(raw, "fluid_shop", "shop_domain", "shop")
	if shop == "" {
		shop = firstString(payload, "fluid_shop", "shop_domain", "shop")
	}
	return ResourceEvent{
		Kind:       kind,
		EventType:  eventType,
		ResourceID: firstString(payload, "id", "uuid", "resource_id"),
		ShopDomain: shop,
		Payload:    payload,
	}
}

func companyScope(raw map[string]any) map[string]any {
	if nested, ok := raw["company"].(map[string]any); ok && len(nested) > 0 {
		return nested
	}
	return raw
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(readString(payload[key])); value != "" {
			return value
		}
	}
	return ""
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}
