package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-droplet/core"
)

var (
	_ gocmd.Querier[GetInstallationMessage, core.Installation]             = (*GetInstallationQuery)(nil)
	_ gocmd.Querier[GetInstallationByShopDomainMessage, core.Installation] = (*GetInstallationByShopDomainQuery)(nil)
	_ gocmd.Querier[ListInstallationsMessage, []core.Installation]         = (*ListInstallationsQuery)(nil)
	_ gocmd.Querier[GetDashboardMessage, core.DashboardSummary]            = (*GetDashboardQuery)(nil)
	_ gocmd.Querier[CountResourcesMessage, core.ResourceCounts]            = (*CountResourcesQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage]                = (*ListActivityQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, []core.DeliveryRecord]          = (*ListDeliveriesQuery)(nil)

	_ InstallationReader = (*core.Service)(nil)
	_ DashboardReader    = (*core.Service)(nil)
	_ ActivityReader     = (*core.Service)(nil)
	_ DeliveryReader     = (*core.Service)(nil)
)
