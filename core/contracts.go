package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type UpsertInstallationInput struct {
	InstallationID           string
	CompanyID                string
	CompanyName              string
	ShopDomain               string
	EncryptedToken           []byte
	WebhookVerificationToken string
	Status                   InstallationStatus
	Configuration            map[string]any
	Metadata                 map[string]any
}

type InstallationFilter struct {
	Status    string
	CompanyID string
	Page      int
	PerPage   int
}

type InstallationStore interface {
	Upsert(ctx context.Context, in UpsertInstallationInput) (Installation, error)
	Get(ctx context.Context, id string) (Installation, error)
	GetByInstallationID(ctx context.Context, installationID string) (Installation, error)
	GetByShopDomain(ctx context.Context, shopDomain string) (Installation, error)
	List(ctx context.Context, filter InstallationFilter) ([]Installation, error)
	UpdateStatus(ctx context.Context, installationID string, status string, reason string) error
	SaveCredential(ctx context.Context, installationID string, encryptedToken []byte) error
	Credential(ctx context.Context, installationID string) ([]byte, error)
	SaveConfiguration(ctx context.Context, installationID string, configuration map[string]any) error
	Delete(ctx context.Context, installationID string) error
}

type ReserveDeliveryInput struct {
	InstallationID string
	DeliveryID     string
	EventType      string
	Payload        map[string]any
}

// DeliveryStore is the persistent delivery ledger. Reserve returns the
// existing record with created=false when the delivery id was already
// claimed, which is how replays are absorbed without re-handling. A row
// previously marked failed is re-claimed (created=true) so a platform
// redelivery can retry it.
type DeliveryStore interface {
	Reserve(ctx context.Context, in ReserveDeliveryInput) (record DeliveryRecord, created bool, err error)
	Get(ctx context.Context, id string) (DeliveryRecord, error)
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, failedAt time.Time) error
	ListByInstallation(ctx context.Context, installationID string, limit int) ([]DeliveryRecord, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type ActivityFilter struct {
	InstallationID string
	ActivityType   string
	Status         ActivityStatus
	From           *time.Time
	To             *time.Time
	Page           int
	PerPage        int
}

type ActivityPage struct {
	Items   []ActivityEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type ActivityStore interface {
	Record(ctx context.Context, entry ActivityEntry) error
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type UpsertProductInput struct {
	InstallationID string
	ResourceID     string
	Title          string
	SKU            string
	Price          string
	Status         string
	Payload        map[string]any
}

type UpsertOrderInput struct {
	InstallationID string
	ResourceID     string
	OrderNumber    string
	Total          string
	Status         string
	PlacedAt       *time.Time
	Payload        map[string]any
}

type UpsertCustomerInput struct {
	InstallationID string
	ResourceID     string
	Email          string
	Name           string
	Phone          string
	Payload        map[string]any
}

type UpsertRepInput struct {
	InstallationID string
	ResourceID     string
	Email          string
	Name           string
	Role           string
	Payload        map[string]any
}

type ProductStore interface {
	Upsert(ctx context.Context, in UpsertProductInput) (Product, error)
	Get(ctx context.Context, installationID string, resourceID string) (Product, error)
	CountByInstallation(ctx context.Context, installationID string) (int, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type OrderStore interface {
	Upsert(ctx context.Context, in UpsertOrderInput) (Order, error)
	Get(ctx context.Context, installationID string, resourceID string) (Order, error)
	CountByInstallation(ctx context.Context, installationID string) (int, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type CustomerStore interface {
	Upsert(ctx context.Context, in UpsertCustomerInput) (Customer, error)
	Get(ctx context.Context, installationID string, resourceID string) (Customer, error)
	CountByInstallation(ctx context.Context, installationID string) (int, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type RepStore interface {
	Upsert(ctx context.Context, in UpsertRepInput) (Rep, error)
	Get(ctx context.Context, installationID string, resourceID string) (Rep, error)
	CountByInstallation(ctx context.Context, installationID string) (int, error)
	DeleteByInstallation(ctx context.Context, installationID string) error
}

type StoreProvider interface {
	InstallationStore() InstallationStore
	DeliveryStore() DeliveryStore
	ActivityStore() ActivityStore
	ProductStore() ProductStore
	OrderStore() OrderStore
	CustomerStore() CustomerStore
	RepStore() RepStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type ExchangeTokenRequest struct {
	InstallationID string
	ShopDomain     string
	InstallToken   string
	Metadata       map[string]any
}

type ExchangeTokenResult struct {
	AuthenticationToken string
	Metadata            map[string]any
}

// TokenExchanger trades the short-lived token carried by an installed event
// for the durable per-installation credential.
type TokenExchanger interface {
	ExchangeInstallToken(ctx context.Context, req ExchangeTokenRequest) (ExchangeTokenResult, error)
}

type EnsureSubscriptionsRequest struct {
	InstallationID      string
	ShopDomain          string
	AuthenticationToken string
	CallbackURL         string
	Metadata            map[string]any
}

// SubscriptionRegistrar reconciles the fixed webhook catalog against the
// subscriptions held remotely for one shop.
type SubscriptionRegistrar interface {
	EnsureSubscriptions(ctx context.Context, req EnsureSubscriptionsRequest) (RegistrationReport, error)
}

type ResourceEventInput struct {
	InstallationID string
	Kind           ResourceKind
	EventType      string
	ResourceID     string
	Payload        map[string]any
}

type ResourceCounts struct {
	Products  int
	Orders    int
	Customers int
	Reps      int
}

type DashboardSummary struct {
	Installation   Installation
	Counts         ResourceCounts
	RecentActivity []ActivityEntry
}

type SubmitConfigurationInput struct {
	InstallationID      string
	CompanyID           string
	CompanyName         string
	ShopDomain          string
	AuthenticationToken string
	Configuration       map[string]any
	Metadata            map[string]any
}

type Task interface {
	Name() string
	Execute(ctx context.Context) error
}

type TaskRunner interface {
	Run(ctx context.Context, task Task) error
}

type PlatformResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res PlatformResponseMeta) error
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}
