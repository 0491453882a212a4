package command

import (
	"strings"

	"github.com/goliatone/go-droplet/core"
)

const (
	TypeStartInstallation      = "droplet.command.installation.start"
	TypeSubmitConfiguration    = "droplet.command.installation.submit_configuration"
	TypeActivateInstallation   = "droplet.command.installation.activate"
	TypeDeactivateInstallation = "droplet.command.installation.deactivate"
	TypeFailInstallation       = "droplet.command.installation.fail"
	TypeDisconnectInstallation = "droplet.command.installation.disconnect"
	TypeApplyResourceEvent     = "droplet.command.resource.apply_event"
	TypeRecordActivity         = "droplet.command.activity.record"
	TypeRunCompanySync         = "droplet.command.sync.run"
)

type StartInstallationMessage struct {
	Request core.BootstrapRequest
}

func (StartInstallationMessage) Type() string { return TypeStartInstallation }

func (m StartInstallationMessage) Validate() error {
	if strings.TrimSpace(m.Request.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}

type SubmitConfigurationMessage struct {
	Input core.SubmitConfigurationInput
}

func (SubmitConfigurationMessage) Type() string { return TypeSubmitConfiguration }

func (m SubmitConfigurationMessage) Validate() error {
	if strings.TrimSpace(m.Input.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}

type ActivateInstallationMessage struct {
	InstallationID string
	Token          string
	Metadata       map[string]any
}

func (ActivateInstallationMessage) Type() string { return TypeActivateInstallation }

func (m ActivateInstallationMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	if strings.TrimSpace(m.Token) == "" {
		return commandValidationError("token", "durable credential is required")
	}
	return nil
}

type DeactivateInstallationMessage struct {
	InstallationID string
	Reason         string
}

func (DeactivateInstallationMessage) Type() string { return TypeDeactivateInstallation }

func (m DeactivateInstallationMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}

type FailInstallationMessage struct {
	InstallationID string
	Cause          string
}

func (FailInstallationMessage) Type() string { return TypeFailInstallation }

func (m FailInstallationMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}

type DisconnectInstallationMessage struct {
	InstallationID string
}

func (DisconnectInstallationMessage) Type() string { return TypeDisconnectInstallation }

func (m DisconnectInstallationMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}

type ApplyResourceEventMessage struct {
	Input core.ResourceEventInput
}

func (ApplyResourceEventMessage) Type() string { return TypeApplyResourceEvent }

func (m ApplyResourceEventMessage) Validate() error {
	if strings.TrimSpace(m.Input.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	if strings.TrimSpace(m.Input.ResourceID) == "" {
		return commandValidationError("resource_id", "resource id is required")
	}
	if _, err := core.ParseResourceKind(string(m.Input.Kind)); err != nil {
		return commandInvalidInputError("command: unknown resource kind " + string(m.Input.Kind))
	}
	return nil
}

type RecordActivityMessage struct {
	Entry core.ActivityEntry
}

func (RecordActivityMessage) Type() string { return TypeRecordActivity }

func (m RecordActivityMessage) Validate() error {
	if strings.TrimSpace(m.Entry.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	if strings.TrimSpace(m.Entry.ActivityType) == "" {
		return commandValidationError("activity_type", "activity type is required")
	}
	return nil
}

type RunCompanySyncMessage struct {
	InstallationID string
}

func (RunCompanySyncMessage) Type() string { return TypeRunCompanySync }

func (m RunCompanySyncMessage) Validate() error {
	if strings.TrimSpace(m.InstallationID) == "" {
		return commandValidationError("installation_id", "installation id is required")
	}
	return nil
}
