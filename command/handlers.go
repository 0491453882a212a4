// Package command wraps the droplet's state-changing operations in
// go-command messages so callers can route them through a dispatcher or a
// queue instead of holding the service directly.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-droplet/core"
	syncpkg "github.com/goliatone/go-droplet/sync"
)

type MutatingService interface {
	StartInstallation(ctx context.Context, req core.BootstrapRequest) (core.Installation, error)
	SubmitConfiguration(ctx context.Context, in core.SubmitConfigurationInput) (core.Installation, error)
	ActivateInstallation(ctx context.Context, installationID string, token string, metadata map[string]any) (core.Installation, error)
	DeactivateInstallation(ctx context.Context, installationID string, reason string) (core.Installation, error)
	FailInstallation(ctx context.Context, installationID string, cause string) (core.Installation, error)
	DeleteInstallation(ctx context.Context, installationID string) error
	ApplyResourceEvent(ctx context.Context, in core.ResourceEventInput) error
	RecordActivity(ctx context.Context, entry core.ActivityEntry) error
}

type SyncRunner interface {
	SyncInstallation(ctx context.Context, installationID string) (syncpkg.Report, error)
}

type StartInstallationCommand struct {
	service MutatingService
}

func NewStartInstallationCommand(service MutatingService) *StartInstallationCommand {
	return &StartInstallationCommand{service: service}
}

func (c *StartInstallationCommand) Execute(ctx context.Context, msg StartInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	out, err := c.service.StartInstallation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitConfigurationCommand struct {
	service MutatingService
}

func NewSubmitConfigurationCommand(service MutatingService) *SubmitConfigurationCommand {
	return &SubmitConfigurationCommand{service: service}
}

func (c *SubmitConfigurationCommand) Execute(ctx context.Context, msg SubmitConfigurationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: configuration service is required")
	}
	out, err := c.service.SubmitConfiguration(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ActivateInstallationCommand struct {
	service MutatingService
}

func NewActivateInstallationCommand(service MutatingService) *ActivateInstallationCommand {
	return &ActivateInstallationCommand{service: service}
}

func (c *ActivateInstallationCommand) Execute(ctx context.Context, msg ActivateInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	out, err := c.service.ActivateInstallation(ctx, msg.InstallationID, msg.Token, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeactivateInstallationCommand struct {
	service MutatingService
}

func NewDeactivateInstallationCommand(service MutatingService) *DeactivateInstallationCommand {
	return &DeactivateInstallationCommand{service: service}
}

func (c *DeactivateInstallationCommand) Execute(ctx context.Context, msg DeactivateInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	out, err := c.service.DeactivateInstallation(ctx, msg.InstallationID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type FailInstallationCommand struct {
	service MutatingService
}

func NewFailInstallationCommand(service MutatingService) *FailInstallationCommand {
	return &FailInstallationCommand{service: service}
}

func (c *FailInstallationCommand) Execute(ctx context.Context, msg FailInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	out, err := c.service.FailInstallation(ctx, msg.InstallationID, msg.Cause)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectInstallationCommand struct {
	service MutatingService
}

func NewDisconnectInstallationCommand(service MutatingService) *DisconnectInstallationCommand {
	return &DisconnectInstallationCommand{service: service}
}

func (c *DisconnectInstallationCommand) Execute(ctx context.Context, msg DisconnectInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	return c.service.DeleteInstallation(ctx, msg.InstallationID)
}

type ApplyResourceEventCommand struct {
	service MutatingService
}

func NewApplyResourceEventCommand(service MutatingService) *ApplyResourceEventCommand {
	return &ApplyResourceEventCommand{service: service}
}

func (c *ApplyResourceEventCommand) Execute(ctx context.Context, msg ApplyResourceEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: resource service is required")
	}
	return c.service.ApplyResourceEvent(ctx, msg.Input)
}

type RecordActivityCommand struct {
	service MutatingService
}

func NewRecordActivityCommand(service MutatingService) *RecordActivityCommand {
	return &RecordActivityCommand{service: service}
}

func (c *RecordActivityCommand) Execute(ctx context.Context, msg RecordActivityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: activity service is required")
	}
	return c.service.RecordActivity(ctx, msg.Entry)
}

type RunCompanySyncCommand struct {
	syncer SyncRunner
}

func NewRunCompanySyncCommand(syncer SyncRunner) *RunCompanySyncCommand {
	return &RunCompanySyncCommand{syncer: syncer}
}

func (c *RunCompanySyncCommand) Execute(ctx context.Context, msg RunCompanySyncMessage) error {
	if c == nil || c.syncer == nil {
		return commandDependencyError("command: sync orchestrator is required")
	}
	out, err := c.syncer.SyncInstallation(ctx, msg.InstallationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
