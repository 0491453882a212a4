package sqlstore

import "github.com/goliatone/go-droplet/core"

var (
	_ core.InstallationStore      = (*InstallationStore)(nil)
	_ core.DeliveryStore          = (*WebhookDeliveryStore)(nil)
	_ core.ActivityStore          = (*ActivityStore)(nil)
	_ core.ProductStore           = (*ProductStore)(nil)
	_ core.OrderStore             = (*OrderStore)(nil)
	_ core.CustomerStore          = (*CustomerStore)(nil)
	_ core.RepStore               = (*RepStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
