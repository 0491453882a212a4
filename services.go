package droplet

import "github.com/goliatone/go-droplet/core"

type Config = core.Config

type WebhookConfig = core.WebhookConfig

type BootstrapConfig = core.BootstrapConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type InstallationStore = core.InstallationStore
type DeliveryStore = core.DeliveryStore
type ActivityStore = core.ActivityStore
type ProductStore = core.ProductStore
type OrderStore = core.OrderStore
type CustomerStore = core.CustomerStore
type RepStore = core.RepStore
type TokenExchanger = core.TokenExchanger
type SubscriptionRegistrar = core.SubscriptionRegistrar
type SecretProvider = core.SecretProvider
type TaskRunner = core.TaskRunner
type RateLimitPolicy = core.RateLimitPolicy

type Installation = core.Installation
type BootstrapRequest = core.BootstrapRequest

type DeliveryRecord = core.DeliveryRecord

type ActivityEntry = core.ActivityEntry

type ResourceEventInput = core.ResourceEventInput

type SubmitConfigurationInput = core.SubmitConfigurationInput

var _ CommandQueryService = (*core.Service)(nil)

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithSecretProvider        = core.WithSecretProvider
	WithTokenCodec            = core.WithTokenCodec
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithInstallationStore     = core.WithInstallationStore
	WithDeliveryStore         = core.WithDeliveryStore
	WithActivityStore         = core.WithActivityStore
	WithProductStore          = core.WithProductStore
	WithOrderStore            = core.WithOrderStore
	WithCustomerStore         = core.WithCustomerStore
	WithRepStore              = core.WithRepStore
	WithTokenExchanger        = core.WithTokenExchanger
	WithSubscriptionRegistrar = core.WithSubscriptionRegistrar
	WithTaskRunner            = core.WithTaskRunner
	WithRateLimitPolicy       = core.WithRateLimitPolicy
	WithNowFunc               = core.WithNowFunc
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
