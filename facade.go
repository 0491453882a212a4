package droplet

import (
	"fmt"

	dropletcommand "github.com/goliatone/go-droplet/command"
	dropletquery "github.com/goliatone/go-droplet/query"
)

type CommandQueryService interface {
	dropletcommand.MutatingService
	dropletquery.InstallationReader
	dropletquery.DashboardReader
	dropletquery.ActivityReader
	dropletquery.DeliveryReader
}

type Commands struct {
	StartInstallation      *dropletcommand.StartInstallationCommand
	SubmitConfiguration    *dropletcommand.SubmitConfigurationCommand
	ActivateInstallation   *dropletcommand.ActivateInstallationCommand
	DeactivateInstallation *dropletcommand.DeactivateInstallationCommand
	FailInstallation       *dropletcommand.FailInstallationCommand
	DisconnectInstallation *dropletcommand.DisconnectInstallationCommand
	ApplyResourceEvent     *dropletcommand.ApplyResourceEventCommand
	RecordActivity         *dropletcommand.RecordActivityCommand
	// RunCompanySync stays nil unless the facade is built WithSyncRunner.
	RunCompanySync *dropletcommand.RunCompanySyncCommand
}

type Queries struct {
	GetInstallation             *dropletquery.GetInstallationQuery
	GetInstallationByShopDomain *dropletquery.GetInstallationByShopDomainQuery
	ListInstallations           *dropletquery.ListInstallationsQuery
	GetDashboard                *dropletquery.GetDashboardQuery
	CountResources              *dropletquery.CountResourcesQuery
	ListActivity                *dropletquery.ListActivityQuery
	ListDeliveries              *dropletquery.ListDeliveriesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	syncer dropletcommand.SyncRunner
}

func WithSyncRunner(syncer dropletcommand.SyncRunner) FacadeOption {
	return func(options *facadeOptions) {
		options.syncer = syncer
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("droplet: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		StartInstallation:      dropletcommand.NewStartInstallationCommand(service),
		SubmitConfiguration:    dropletcommand.NewSubmitConfigurationCommand(service),
		ActivateInstallation:   dropletcommand.NewActivateInstallationCommand(service),
		DeactivateInstallation: dropletcommand.NewDeactivateInstallationCommand(service),
		FailInstallation:       dropletcommand.NewFailInstallationCommand(service),
		DisconnectInstallation: dropletcommand.NewDisconnectInstallationCommand(service),
		ApplyResourceEvent:     dropletcommand.NewApplyResourceEventCommand(service),
		RecordActivity:         dropletcommand.NewRecordActivityCommand(service),
	}
	if cfg.syncer != nil {
		facade.commands.RunCompanySync = dropletcommand.NewRunCompanySyncCommand(cfg.syncer)
	}
	facade.queries = Queries{
		GetInstallation:             dropletquery.NewGetInstallationQuery(service),
		GetInstallationByShopDomain: dropletquery.NewGetInstallationByShopDomainQuery(service),
		ListInstallations:           dropletquery.NewListInstallationsQuery(service),
		GetDashboard:                dropletquery.NewGetDashboardQuery(service),
		CountResources:              dropletquery.NewCountResourcesQuery(service),
		ListActivity:                dropletquery.NewListActivityQuery(service),
		ListDeliveries:              dropletquery.NewListDeliveriesQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
