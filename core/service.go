package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	tokenCodec        TokenCodec
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	installationStore InstallationStore
	deliveryStore     DeliveryStore
	activityStore     ActivityStore
	productStore      ProductStore
	orderStore        OrderStore
	customerStore     CustomerStore
	repStore          RepStore
	tokenExchanger    TokenExchanger
	registrar         SubscriptionRegistrar
	taskRunner        TaskRunner
	rateLimitPolicy   RateLimitPolicy
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	TokenCodec        TokenCodec
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	InstallationStore InstallationStore
	DeliveryStore     DeliveryStore
	ActivityStore     ActivityStore
	ProductStore      ProductStore
	OrderStore        OrderStore
	CustomerStore     CustomerStore
	RepStore          RepStore
	TokenExchanger    TokenExchanger
	Registrar         SubscriptionRegistrar
	TaskRunner        TaskRunner
	RateLimitPolicy   RateLimitPolicy
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("droplet", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("droplet"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.tokenCodec == nil {
		builder.tokenCodec = JSONTokenCodec{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if built, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = built
		}
		if storeProvider != nil {
			if builder.installationStore == nil {
				builder.installationStore = storeProvider.InstallationStore()
			}
			if builder.deliveryStore == nil {
				builder.deliveryStore = storeProvider.DeliveryStore()
			}
			if builder.activityStore == nil {
				builder.activityStore = storeProvider.ActivityStore()
			}
			if builder.productStore == nil {
				builder.productStore = storeProvider.ProductStore()
			}
			if builder.orderStore == nil {
				builder.orderStore = storeProvider.OrderStore()
			}
			if builder.customerStore == nil {
				builder.customerStore = storeProvider.CustomerStore()
			}
			if builder.repStore == nil {
				builder.repStore = storeProvider.RepStore()
			}
		}
	}

	if builder.taskRunner == nil {
		builder.taskRunner = GoroutineTaskRunner{Logger: logger}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		tokenCodec:        builder.tokenCodec,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		installationStore: builder.installationStore,
		deliveryStore:     builder.deliveryStore,
		activityStore:     builder.activityStore,
		productStore:      builder.productStore,
		orderStore:        builder.orderStore,
		customerStore:     builder.customerStore,
		repStore:          builder.repStore,
		tokenExchanger:    builder.tokenExchanger,
		registrar:         builder.registrar,
		taskRunner:        builder.taskRunner,
		rateLimitPolicy:   builder.rateLimitPolicy,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		TokenCodec:        s.tokenCodec,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		InstallationStore: s.installationStore,
		DeliveryStore:     s.deliveryStore,
		ActivityStore:     s.activityStore,
		ProductStore:      s.productStore,
		OrderStore:        s.orderStore,
		CustomerStore:     s.customerStore,
		RepStore:          s.repStore,
		TokenExchanger:    s.tokenExchanger,
		Registrar:         s.registrar,
		TaskRunner:        s.taskRunner,
		RateLimitPolicy:   s.rateLimitPolicy,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

func copyAnyMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}
