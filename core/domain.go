package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInstallationStatusTransition = errors.New("core: invalid installation status transition")
	ErrInvalidResourceKind                 = errors.New("core: invalid resource kind")
	ErrInstallationNotFound                = errors.New("core: installation not found")
	ErrCredentialMismatch                  = errors.New("core: credential mismatch")
	ErrCredentialRequired                  = errors.New("core: durable credential is required")
)

type InstallationStatus string

const (
	InstallationStatusPending  InstallationStatus = "pending"
	InstallationStatusActive   InstallationStatus = "active"
	InstallationStatusInactive InstallationStatus = "inactive"
	InstallationStatusFailed   InstallationStatus = "failed"
)

// Installation is one tenant's activation of the droplet, keyed by the
// platform-assigned installation id. The durable credential is held encrypted
// at rest; AuthenticationToken carries the decrypted value in memory only.
type Installation struct {
	ID                       string
	InstallationID           string
	CompanyID                string
	CompanyName              string
	ShopDomain               string
	AuthenticationToken      string
	WebhookVerificationToken string
	Status                   InstallationStatus
	Configuration            map[string]any
	Metadata                 map[string]any
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (i *Installation) TransitionTo(status InstallationStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		return nil
	}
	if !installationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInstallationStatusTransition, i.Status, status)
	}
	if status == InstallationStatusActive && strings.TrimSpace(i.AuthenticationToken) == "" {
		return fmt.Errorf("%w: installation %q", ErrCredentialRequired, i.InstallationID)
	}
	i.Status = status
	i.UpdatedAt = now
	return nil
}

// pending is the bootstrap state; inactive and failed are both resurrected by
// a fresh installed event (reopen), never auto-recovered.
func installationTransitionAllowed(current, next InstallationStatus) bool {
	allowed := map[InstallationStatus]map[InstallationStatus]struct{}{
		InstallationStatusPending: {
			InstallationStatusActive:   {},
			InstallationStatusInactive: {},
			InstallationStatusFailed:   {},
		},
		InstallationStatusActive: {
			InstallationStatusInactive: {},
		},
		InstallationStatusInactive: {
			InstallationStatusPending: {},
		},
		InstallationStatusFailed: {
			InstallationStatusPending: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type ResourceKind string

const (
	ResourceKindProduct  ResourceKind = "product"
	ResourceKindOrder    ResourceKind = "order"
	ResourceKindCustomer ResourceKind = "customer"
	ResourceKindRep      ResourceKind = "rep"
)

func ParseResourceKind(value string) (ResourceKind, error) {
	switch ResourceKind(strings.TrimSpace(strings.ToLower(value))) {
	case ResourceKindProduct:
		return ResourceKindProduct, nil
	case ResourceKindOrder:
		return ResourceKindOrder, nil
	case ResourceKindCustomer:
		return ResourceKindCustomer, nil
	case ResourceKindRep:
		return ResourceKindRep, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResourceKind, value)
	}
}

// Product mirrors the platform's product resource, upserted by
// (installation id, resource id).
type Product struct {
	ID             string
	InstallationID string
	ResourceID     string
	Title          string
	SKU            string
	Price          string
	Status         string
	Payload        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Order struct {
	ID             string
	InstallationID string
	ResourceID     string
	OrderNumber    string
	Total          string
	Status         string
	PlacedAt       *time.Time
	Payload        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Customer struct {
	ID             string
	InstallationID string
	ResourceID     string
	Email          string
	Name           string
	Phone          string
	Payload        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Rep struct {
	ID             string
	InstallationID string
	ResourceID     string
	Email          string
	Name           string
	Role           string
	Payload        map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ActivityStatus string

const (
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusError   ActivityStatus = "error"
	ActivityStatusWarning ActivityStatus = "warning"
)

// ActivityEntry is the append-only audit trail written by every state-changing
// operation. Entries are only removed by the tenant disconnect cascade.
type ActivityEntry struct {
	ID             string
	InstallationID string
	ActivityType   string
	Status         ActivityStatus
	Details        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// DeliveryRecord is one persisted inbound webhook call. Processed flips once
// downstream handling completes; Error holds the last handling failure.
type DeliveryRecord struct {
	ID             string
	InstallationID string
	DeliveryID     string
	EventType      string
	Payload        map[string]any
	Processed      bool
	ProcessedAt    *time.Time
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionEntry is one (resource, event) pair of the fixed registration
// catalog, mirrored transiently while reconciling against the platform.
type SubscriptionEntry struct {
	Resource string
	Event    string
}

func (e SubscriptionEntry) Key() string {
	return strings.TrimSpace(strings.ToLower(e.Resource)) + ":" + strings.TrimSpace(strings.ToLower(e.Event))
}

// RemoteSubscription is a platform-held webhook subscription row as returned
// by the list endpoint.
type RemoteSubscription struct {
	ID       string
	Resource string
	Event    string
	URL      string
	Active   bool
}

// RegistrationReport aggregates one EnsureSubscriptions pass over the catalog.
// Partial failure is not escalated; re-running is idempotent.
type RegistrationReport struct {
	Success  int
	Skipped  int
	Failed   int
	Errors   []string
	Metadata map[string]any
}

type RateLimitKey struct {
	ShopDomain string
	BucketKey  string
}
