package query

import (
	"strings"

	"github.com/goliatone/go-droplet/core"
)

const (
	TypeGetInstallation             = "droplet.query.installation.get"
	TypeGetInstallationByShopDomain = "droplet.query.installation.get_by_shop_domain"
	TypeListInstallations           = "droplet.query.installation.list"
	TypeGetDashboard                = "droplet.query.dashboard.get"
	TypeCountResources              = "droplet.query.resource.count"
	TypeListActivity                = "droplet.query.activity.list"
	TypeListDeliveries              = "droplet.query.deliveries.list"
)

type GetInstallationMessage struct {
	InstallationID string
}

func (GetInstallationMessage) Type() string { return TypeGetInstallation }

func (m GetInstallationMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return queryValidationError("installation_id", "installation id is required")
	}
	return nil
}

type GetInstallationByShopDomainMessage struct {
	ShopDomain string
}

func (GetInstallationByShopDomainMessage) Type() string { return TypeGetInstallationByShopDomain }

func (m GetInstallationByShopDomainMessage) Validate() error {
	if strings.TrimSpace(m.ShopDomain) == "" {
		return queryValidationError("shop_domain", "shop domain is required")
	}
	return nil
}

type ListInstallationsMessage struct {
	Filter core.InstallationFilter
}

func (ListInstallationsMessage) Type() string { return TypeListInstallations }

func (m ListInstallationsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return nil
}

type GetDashboardMessage struct {
	InstallationID string
}

func (GetDashboardMessage) Type() string { return TypeGetDashboard }

func (m GetDashboardMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return queryValidationError("installation_id", "installation id is required")
	}
	return nil
}

type CountResourcesMessage struct {
	InstallationID string
}

func (CountResourcesMessage) Type() string { return TypeCountResources }

func (m CountResourcesMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return queryValidationError("installation_id", "installation id is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return nil
}

type ListDeliveriesMessage struct {
	InstallationID string
	Limit          int
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return queryValidationError("installation_id", "installation id is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
