package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	ActivityInstallationUpserted    = "installation_upserted"
	ActivityInstallationActivated   = "installation_activated"
	ActivityInstallationDeactivated = "installation_deactivated"
	ActivityInstallationFailed      = "installation_failed"
	ActivityConfigurationSubmitted  = "configuration_submitted"
	ActivityBootstrapStarted        = "bootstrap_started"
	ActivityBootstrapCompleted      = "bootstrap_completed"
	ActivityBootstrapFailed         = "bootstrap_failed"
	ActivityTokenExchanged          = "token_exchanged"
	ActivityWebhooksRegistered      = "webhooks_registered"
	ActivityResourceUpserted        = "resource_upserted"
	ActivityCompanyDataSynced       = "company_data_synced"
)

func (s *Service) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	if s == nil || s.activityStore == nil {
		return s.mapError(fmt.Errorf("core: activity store is required"))
	}
	entry.InstallationID = strings.TrimSpace(entry.InstallationID)
	entry.ActivityType = strings.TrimSpace(strings.ToLower(entry.ActivityType))
	if entry.InstallationID == "" || entry.ActivityType == "" {
		return s.mapError(fmt.Errorf("core: installation id and activity type are required"))
	}
	if strings.TrimSpace(string(entry.Status)) == "" {
		entry.Status = ActivityStatusSuccess
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	entry.Metadata = RedactSensitiveMap(entry.Metadata)
	if err := s.activityStore.Record(ctx, entry); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) ListActivity(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if s == nil || s.activityStore == nil {
		return ActivityPage{}, s.mapError(fmt.Errorf("core: activity store is required"))
	}
	filter.InstallationID = strings.TrimSpace(filter.InstallationID)
	filter.ActivityType = strings.TrimSpace(strings.ToLower(filter.ActivityType))
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 25
	}
	page, err := s.activityStore.List(ctx, filter)
	if err != nil {
		return ActivityPage{}, s.mapError(err)
	}
	return page, nil
}

// recordActivity is the internal fire-and-forget variant. The trail never
// blocks the operation that writes to it.
func (s *Service) recordActivity(ctx context.Context, installationID string, activityType string, status ActivityStatus, details string, metadata map[string]any) {
	if s == nil || s.activityStore == nil {
		return
	}
	err := s.RecordActivity(ctx, ActivityEntry{
		InstallationID: installationID,
		ActivityType:   activityType,
		Status:         status,
		Details:        details,
		Metadata:       metadata,
	})
	if err != nil {
		s.logError(ctx, "activity record failed", map[string]any{
			"installation_id": installationID,
			"activity_type":   activityType,
			"error":           err.Error(),
		})
	}
}

func (s *Service) deleteActivity(ctx context.Context, installationID string) error {
	if s == nil || s.activityStore == nil {
		return nil
	}
	return s.activityStore.DeleteByInstallation(ctx, installationID)
}
