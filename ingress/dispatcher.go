package ingress

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-droplet/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	DefaultShopHeader     = "X-Fluid-Shop"
	DefaultDeliveryHeader = "X-Fluid-Webhook-Id"
)

// Service is the slice of droplet core behavior the dispatcher drives.
type Service interface {
	RecordDelivery(ctx context.Context, in core.ReserveDeliveryInput) (core.DeliveryRecord, bool, error)
	CompleteDelivery(ctx context.Context, id string) error
	FailDelivery(ctx context.Context, id string, cause error) error
	StartInstallation(ctx context.Context, req core.BootstrapRequest) (core.Installation, error)
	DeactivateInstallation(ctx context.Context, installationID string, reason string) (core.Installation, error)
	ApplyResourceEvent(ctx context.Context, in core.ResourceEventInput) error
	GetInstallationByShopDomain(ctx context.Context, shopDomain string) (core.Installation, error)
}

var _ Service = (*core.Service)(nil)

// Dispatcher routes classified webhook payloads into the core service.
// Deliveries are claimed in the persistent ledger before handling; a replayed
// delivery id is acknowledged without re-handling. When no Verifier is set
// every parseable payload is accepted.
type Dispatcher struct {
	Service        Service
	Verifier       Verifier
	Logger         core.Logger
	ShopHeader     string
	DeliveryHeader string
	// GenerateID supplies ledger ids for deliveries the platform sent
	// without one. Generated ids never collide, so those rows are
	// recorded but cannot dedupe.
	GenerateID func() string
}

func NewDispatcher(service Service) *Dispatcher {
	return &Dispatcher{
		Service:        service,
		ShopHeader:     DefaultShopHeader,
		DeliveryHeader: DefaultDeliveryHeader,
		GenerateID:     uuid.NewString,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req InboundRequest) (InboundResult, error) {
	if d == nil || d.Service == nil {
		return InboundResult{}, ingressInternal("ingress: dispatcher requires a service", nil)
	}

	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return InboundResult{
					Accepted:   false,
					StatusCode: http.StatusUnauthorized,
					Metadata:   map[string]any{"rejected": true},
				}, ingressWrapError(
					err,
					goerrors.CategoryAuth,
					"ingress: signature verification failed",
					http.StatusUnauthorized,
					core.ServiceErrorCredentialMismatch,
					nil,
				)
		}
	}

	event, err := ClassifyPayload(req.Body)
	if err != nil {
		return InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"rejected": true},
		}, err
	}

	switch event.Class {
	case EventClassLifecycle:
		return d.dispatchLifecycle(ctx, req, event)
	case EventClassResource:
		return d.dispatchResource(ctx, req, event)
	default:
		d.logger().Info("webhook event dropped",
			"reason", "unrecognized_event",
			"event", firstString(event.Raw, "event"),
			"resource", firstString(event.Raw, "resource"),
		)
		return dropResult("unrecognized_event", nil), nil
	}
}

func (d *Dispatcher) dispatchLifecycle(ctx context.Context, req InboundRequest, event InboundEvent) (InboundResult, error) {
	lifecycle := event.Lifecycle
	name := eventName("droplet", lifecycle.Event)

	installationID := lifecycle.InstallationID
	if installationID == "" && lifecycle.Event == LifecycleUninstalled {
		installation, found, err := d.resolveByShop(ctx, req, lifecycle.ShopDomain)
		if err != nil {
			return InboundResult{}, err
		}
		if found {
			installationID = installation.InstallationID
		}
	}
	if installationID == "" {
		d.logger().Warn("webhook event dropped",
			"reason", "missing_installation_id",
			"event", name,
			"company_id", lifecycle.CompanyID,
			"shop_domain", lifecycle.ShopDomain,
		)
		return dropResult("missing_installation_id", map[string]any{"event": name}), nil
	}

	record, created, err := d.Service.RecordDelivery(ctx, core.ReserveDeliveryInput{
		InstallationID: installationID,
		DeliveryID:     d.deliveryID(req, event.Raw),
		EventType:      name,
		Payload:        event.Raw,
	})
	if err != nil {
		return InboundResult{}, err
	}
	if !created {
		return dedupedResult(name, record), nil
	}

	switch lifecycle.Event {
	case LifecycleInstalled:
		_, err = d.Service.StartInstallation(ctx, core.BootstrapRequest{
			InstallationID: installationID,
			CompanyID:      lifecycle.CompanyID,
			CompanyName:    lifecycle.CompanyName,
			ShopDomain:     lifecycle.ShopDomain,
			InstallToken:   lifecycle.InstallToken,
		})
	case LifecycleUninstalled:
		_, err = d.Service.DeactivateInstallation(ctx, installationID, "uninstalled webhook")
		if err != nil && isDroppableServiceError(err) {
			d.logger().Info("webhook event dropped",
				"reason", "uninstall_not_applicable",
				"event", name,
				"installation_id", installationID,
				"error", err.Error(),
			)
			if completeErr := d.Service.CompleteDelivery(ctx, record.ID); completeErr != nil {
				return InboundResult{}, completeErr
			}
			return dropResult("uninstall_not_applicable", map[string]any{
				"event":           name,
				"installation_id": installationID,
				"delivery_id":     record.DeliveryID,
			}), nil
		}
	}
	if err != nil {
		_ = d.Service.FailDelivery(ctx, record.ID, err)
		return InboundResult{}, err
	}

	if err := d.Service.CompleteDelivery(ctx, record.ID); err != nil {
		return InboundResult{}, err
	}
	return ackResult(map[string]any{
		"event":           name,
		"installation_id": installationID,
		"delivery_id":     record.DeliveryID,
	}), nil
}

func (d *Dispatcher) dispatchResource(ctx context.Context, req InboundRequest, event InboundEvent) (InboundResult, error) {
	resource := event.Resource
	name := eventName(string(resource.Kind), resource.EventType)

	installation, found, err := d.resolveByShop(ctx, req, resource.ShopDomain)
	if err != nil {
		return InboundResult{}, err
	}
	if !found {
		d.logger().Info("webhook event dropped",
			"reason", "installation_not_found",
			"event", name,
			"shop_domain", resource.ShopDomain,
		)
		return dropResult("installation_not_found", map[string]any{"event": name}), nil
	}
	if resource.ResourceID == "" {
		d.logger().Warn("webhook event dropped",
			"reason", "missing_resource_id",
			"event", name,
			"installation_id", installation.InstallationID,
		)
		return dropResult("missing_resource_id", map[string]any{"event": name}), nil
	}

	record, created, err := d.Service.RecordDelivery(ctx, core.ReserveDeliveryInput{
		InstallationID: installation.InstallationID,
		DeliveryID:     d.deliveryID(req, event.Raw),
		EventType:      name,
		Payload:        event.Raw,
	})
	if err != nil {
		return InboundResult{}, err
	}
	if !created {
		return dedupedResult(name, record), nil
	}

	if err := d.Service.ApplyResourceEvent(ctx, core.ResourceEventInput{
		InstallationID: installation.InstallationID,
		Kind:           resource.Kind,
		EventType:      resource.EventType,
		ResourceID:     resource.ResourceID,
		Payload:        resource.Payload,
	}); err != nil {
		_ = d.Service.FailDelivery(ctx, record.ID, err)
		return InboundResult{}, err
	}

	if err := d.Service.CompleteDelivery(ctx, record.ID); err != nil {
		return InboundResult{}, err
	}
	return ackResult(map[string]any{
		"event":           name,
		"installation_id": installation.InstallationID,
		"resource_id":     resource.ResourceID,
		"delivery_id":     record.DeliveryID,
	}), nil
}

// resolveByShop finds the installation that owns a shop identifier: the
// header wins, the payload shop field is the fallback. A missing installation
// is reported as found=false, not an error, because webhook delivery can race
// ahead of lifecycle processing.
func (d *Dispatcher) resolveByShop(ctx context.Context, req InboundRequest, payloadShop string) (core.Installation, bool, error) {
	shop := headerValue(req.Headers, d.shopHeader())
	if shop == "" {
		shop = strings.TrimSpace(payloadShop)
	}
	if shop == "" {
		return core.Installation{}, false, nil
	}
	installation, err := d.Service.GetInstallationByShopDomain(ctx, shop)
	if err != nil {
		if isDroppableServiceError(err) {
			return core.Installation{}, false, nil
		}
		return core.Installation{}, false, err
	}
	return installation, true, nil
}

func (d *Dispatcher) deliveryID(req InboundRequest, raw map[string]any) string {
	if value := headerValue(req.Headers, d.deliveryHeader()); value != "" {
		return value
	}
	if value := firstString(raw, "delivery_id", "webhook_id"); value != "" {
		return value
	}
	if d.GenerateID != nil {
		return d.GenerateID()
	}
	return uuid.NewString()
}

func (d *Dispatcher) shopHeader() string {
	if d != nil && strings.TrimSpace(d.ShopHeader) != "" {
		return d.ShopHeader
	}
	return DefaultShopHeader
}

func (d *Dispatcher) deliveryHeader() string {
	if d != nil && strings.TrimSpace(d.DeliveryHeader) != "" {
		return d.DeliveryHeader
	}
	return DefaultDeliveryHeader
}

func (d *Dispatcher) logger() core.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return glog.Ensure(nil)
}

// isDroppableServiceError reports whether a core error represents a state the
// webhook path absorbs silently: a missing installation or a transition that
// does not apply. Store and internal failures stay errors so the platform
// redelivers.
func isDroppableServiceError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	switch richErr.TextCode {
	case core.ServiceErrorInstallationNotFound, core.ServiceErrorInvalidTransition:
		return true
	}
	return richErr.Category == goerrors.CategoryNotFound
}

func eventName(resource string, event string) string {
	return resource + "/" + event
}

func ackResult(metadata map[string]any) InboundResult {
	return InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   ensureMetadata(metadata),
	}
}

func dropResult(reason string, metadata map[string]any) InboundResult {
	metadata = ensureMetadata(metadata)
	metadata["dropped"] = true
	metadata["reason"] = reason
	return ackResult(metadata)
}

func dedupedResult(name string, record core.DeliveryRecord) InboundResult {
	return ackResult(map[string]any{
		"event":       name,
		"delivery_id": record.DeliveryID,
		"deduped":     true,
	})
}
