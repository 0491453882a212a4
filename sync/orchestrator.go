// Package sync rebuilds a tenant's resource mirrors on demand by paging
// through the platform's company-data endpoints and replaying every item
// through the same upsert path webhook deliveries use.
package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-droplet/core"
	"github.com/goliatone/go-droplet/fluid"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultPerPage  = 50
	defaultMaxPages = 40

	// syncedEventType marks mirror writes that came from a pull rather than
	// a webhook delivery. The upsert path treats it like any update verb.
	syncedEventType = "synced"
)

// Service is the slice of the core service a company-data pull drives.
type Service interface {
	GetInstallation(ctx context.Context, installationID string) (core.Installation, error)
	InstallationCredential(ctx context.Context, installationID string) (string, error)
	ApplyResourceEvent(ctx context.Context, in core.ResourceEventInput) error
	RecordActivity(ctx context.Context, entry core.ActivityEntry) error
}

var _ Service = (*core.Service)(nil)

// ResourceLister reads one page of company data from the platform.
type ResourceLister interface {
	ListResources(ctx context.Context, req fluid.ListResourcesRequest) (fluid.ResourcePage, error)
}

var _ ResourceLister = (*fluid.Client)(nil)

// DefaultKinds returns the mirrored resource kinds in pull order.
func DefaultKinds() []core.ResourceKind {
	return []core.ResourceKind{
		core.ResourceKindProduct,
		core.ResourceKindOrder,
		core.ResourceKindCustomer,
		core.ResourceKindRep,
	}
}

// KindReport is the outcome of pulling one resource kind.
type KindReport struct {
	Kind   core.ResourceKind
	Pages  int
	Synced int
	Failed int
	Error  string
}

// Report aggregates one full company-data pull. A kind that fails part way
// through does not stop the remaining kinds; its first error lands in Errors
// and the completion activity is recorded as a warning.
type Report struct {
	InstallationID string
	StartedAt      time.Time
	Duration       time.Duration
	Synced         int
	Failed         int
	Kinds          []KindReport
	Errors         []string
}

// Orchestrator pulls company data through the platform client into the
// resource mirrors. Fields may be tuned before first use.
type Orchestrator struct {
	Service  Service
	Platform ResourceLister
	PerPage  int
	MaxPages int
	Kinds    []core.ResourceKind
	Logger   core.Logger
	Now      func() time.Time
}

func NewOrchestrator(service Service, platform ResourceLister) *Orchestrator {
	return &Orchestrator{
		Service:  service,
		Platform: platform,
		PerPage:  defaultPerPage,
		MaxPages: defaultMaxPages,
		Kinds:    DefaultKinds(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// SyncInstallation pulls every configured resource kind for one installation.
// The durable credential is resolved once up front and never logged. Per-kind
// failures stay inside the report; only missing prerequisites return an error.
func (o *Orchestrator) SyncInstallation(ctx context.Context, installationID string) (Report, error) {
	if o == nil || o.Service == nil || o.Platform == nil {
		return Report{}, fmt.Errorf("sync: orchestrator requires a service and a platform client")
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return Report{}, fmt.Errorf("sync: installation id is required")
	}

	installation, err := o.Service.GetInstallation(ctx, installationID)
	if err != nil {
		return Report{}, err
	}
	token, err := o.Service.InstallationCredential(ctx, installationID)
	if err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(token) == "" {
		return Report{}, fmt.Errorf("sync: installation %q holds no durable credential", installationID)
	}

	startedAt := o.now()
	report := Report{
		InstallationID: installationID,
		StartedAt:      startedAt,
	}
	kinds := o.Kinds
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	for _, kind := range kinds {
		kindReport := o.syncKind(ctx, installation, token, kind)
		report.Kinds = append(report.Kinds, kindReport)
		report.Synced += kindReport.Synced
		report.Failed += kindReport.Failed
		if kindReport.Error != "" {
			report.Errors = append(report.Errors, kindReport.Error)
		}
	}
	report.Duration = o.now().Sub(startedAt)

	o.recordOutcome(ctx, report)
	o.logger().Debug("company data sync finished",
		"installation_id", installationID,
		"shop_domain", installation.ShopDomain,
		"synced", report.Synced,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// syncKind pages through one resource kind until the platform reports no more
// pages or the page cap is reached. A list failure stops this kind only; an
// item that will not upsert is counted and skipped.
func (o *Orchestrator) syncKind(
	ctx context.Context,
	installation core.Installation,
	token string,
	kind core.ResourceKind,
) KindReport {
	report := KindReport{Kind: kind}
	maxPages := o.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	for page := 1; page <= maxPages; page++ {
		resourcePage, err := o.Platform.ListResources(ctx, fluid.ListResourcesRequest{
			ShopDomain:          installation.ShopDomain,
			AuthenticationToken: token,
			Kind:                kind,
			Page:                page,
			PerPage:             o.perPage(),
		})
		if err != nil {
			report.Error = fmt.Sprintf("%s page %d: %v", kind, page, err)
			o.logger().Warn("company data page read failed",
				"installation_id", installation.InstallationID,
				"kind", string(kind),
				"page", page,
				"error", err.Error(),
			)
			return report
		}
		report.Pages++

		for _, item := range resourcePage.Items {
			err := o.Service.ApplyResourceEvent(ctx, core.ResourceEventInput{
				InstallationID: installation.InstallationID,
				Kind:           kind,
				EventType:      syncedEventType,
				Payload:        item,
			})
			if err != nil {
				report.Failed++
				if report.Error == "" {
					report.Error = fmt.Sprintf("%s: %v", kind, err)
				}
				continue
			}
			report.Synced++
		}

		if !resourcePage.HasMore {
			return report
		}
	}
	return report
}

// recordOutcome writes the completion activity entry. Activity failures only
// warn; the pull itself already happened.
func (o *Orchestrator) recordOutcome(ctx context.Context, report Report) {
	status := core.ActivityStatusSuccess
	details := fmt.Sprintf("synced %d resources", report.Synced)
	if len(report.Errors) > 0 {
		status = core.ActivityStatusWarning
		details = fmt.Sprintf("synced %d resources with %d errors", report.Synced, len(report.Errors))
	}

	metadata := map[string]any{
		"synced":      report.Synced,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	}
	for _, kindReport := range report.Kinds {
		metadata[string(kindReport.Kind)+"_synced"] = kindReport.Synced
	}
	if len(report.Errors) > 0 {
		metadata["errors"] = append([]string(nil), report.Errors...)
	}

	err := o.Service.RecordActivity(ctx, core.ActivityEntry{
		InstallationID: report.InstallationID,
		ActivityType:   core.ActivityCompanyDataSynced,
		Status:         status,
		Details:        details,
		Metadata:       metadata,
	})
	if err != nil {
		o.logger().Warn("company data sync activity write failed",
			"installation_id", report.InstallationID,
			"error", err.Error(),
		)
	}
}

func (o *Orchestrator) perPage() int {
	if o != nil && o.PerPage > 0 {
		return o.PerPage
	}
	return defaultPerPage
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) logger() core.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return glog.Ensure(nil)
}
