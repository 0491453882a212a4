// Package query wraps the droplet's read-side operations in go-command
// messages, mirroring the command package for state changes.
package query

import (
	"context"

	"github.com/goliatone/go-droplet/core"
)

type InstallationReader interface {
	GetInstallation(ctx context.Context, installationID string) (core.Installation, error)
	GetInstallationByShopDomain(ctx context.Context, shopDomain string) (core.Installation, error)
	ListInstallations(ctx context.Context, filter core.InstallationFilter) ([]core.Installation, error)
}

type DashboardReader interface {
	Dashboard(ctx context.Context, installationID string) (core.DashboardSummary, error)
	CountResources(ctx context.Context, installationID string) (core.ResourceCounts, error)
}

type ActivityReader interface {
	ListActivity(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, installationID string, limit int) ([]core.DeliveryRecord, error)
}

type GetInstallationQuery struct {
	reader InstallationReader
}

func NewGetInstallationQuery(reader InstallationReader) *GetInstallationQuery {
	return &GetInstallationQuery{reader: reader}
}

func (q *GetInstallationQuery) Query(ctx context.Context, msg GetInstallationMessage) (core.Installation, error) {
	if q == nil || q.reader == nil {
		return core.Installation{}, queryDependencyError("query: installation reader is required")
	}
	return q.reader.GetInstallation(ctx, msg.InstallationID)
}

type GetInstallationByShopDomainQuery struct {
	reader InstallationReader
}

func NewGetInstallationByShopDomainQuery(reader InstallationReader) *GetInstallationByShopDomainQuery {
	return &GetInstallationByShopDomainQuery{reader: reader}
}

func (q *GetInstallationByShopDomainQuery) Query(
	ctx context.Context,
	msg GetInstallationByShopDomainMessage,
) (core.Installation, error) {
	if q == nil || q.reader == nil {
		return core.Installation{}, queryDependencyError("query: installation reader is required")
	}
	return q.reader.GetInstallationByShopDomain(ctx, msg.ShopDomain)
}

type ListInstallationsQuery struct {
	reader InstallationReader
}

func NewListInstallationsQuery(reader InstallationReader) *ListInstallationsQuery {
	return &ListInstallationsQuery{reader: reader}
}

func (q *ListInstallationsQuery) Query(
	ctx context.Context,
	msg ListInstallationsMessage,
) ([]core.Installation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: installation reader is required")
	}
	return q.reader.ListInstallations(ctx, msg.Filter)
}

type GetDashboardQuery struct {
	reader DashboardReader
}

func NewGetDashboardQuery(reader DashboardReader) *GetDashboardQuery {
	return &GetDashboardQuery{reader: reader}
}

func (q *GetDashboardQuery) Query(ctx context.Context, msg GetDashboardMessage) (core.DashboardSummary, error) {
	if q == nil || q.reader == nil {
		return core.DashboardSummary{}, queryDependencyError("query: dashboard reader is required")
	}
	return q.reader.Dashboard(ctx, msg.InstallationID)
}

type CountResourcesQuery struct {
	reader DashboardReader
}

func NewCountResourcesQuery(reader DashboardReader) *CountResourcesQuery {
	return &CountResourcesQuery{reader: reader}
}

func (q *CountResourcesQuery) Query(ctx context.Context, msg CountResourcesMessage) (core.ResourceCounts, error) {
	if q == nil || q.reader == nil {
		return core.ResourceCounts{}, queryDependencyError("query: dashboard reader is required")
	}
	return q.reader.CountResources(ctx, msg.InstallationID)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.ListActivity(ctx, msg.Filter)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) ([]core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.InstallationID, msg.Limit)
}
