package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-droplet/core"
	syncpkg "github.com/goliatone/go-droplet/sync"
)

var (
	_ gocmd.Commander[StartInstallationMessage]      = (*StartInstallationCommand)(nil)
	_ gocmd.Commander[SubmitConfigurationMessage]    = (*SubmitConfigurationCommand)(nil)
	_ gocmd.Commander[ActivateInstallationMessage]   = (*ActivateInstallationCommand)(nil)
	_ gocmd.Commander[DeactivateInstallationMessage] = (*DeactivateInstallationCommand)(nil)
	_ gocmd.Commander[FailInstallationMessage]       = (*FailInstallationCommand)(nil)
	_ gocmd.Commander[DisconnectInstallationMessage] = (*DisconnectInstallationCommand)(nil)
	_ gocmd.Commander[ApplyResourceEventMessage]     = (*ApplyResourceEventCommand)(nil)
	_ gocmd.Commander[RecordActivityMessage]         = (*RecordActivityCommand)(nil)
	_ gocmd.Commander[RunCompanySyncMessage]         = (*RunCompanySyncCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
	_ SyncRunner      = (*syncpkg.Orchestrator)(nil)
)
