package core

import (
	"context"
	"fmt"
	"strings"
)

// RecordDelivery claims a delivery id in the persistent ledger. The second
// return is false when the id was already claimed, which tells the dispatcher
// to acknowledge without re-handling.
func (s *Service) RecordDelivery(ctx context.Context, in ReserveDeliveryInput) (DeliveryRecord, bool, error) {
	if s == nil || s.deliveryStore == nil {
		return DeliveryRecord{}, false, s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.DeliveryID = strings.TrimSpace(in.DeliveryID)
	in.EventType = strings.TrimSpace(strings.ToLower(in.EventType))
	if in.DeliveryID == "" {
		return DeliveryRecord{}, false, s.mapError(fmt.Errorf("core: delivery id is required"))
	}
	if in.EventType == "" {
		return DeliveryRecord{}, false, s.mapError(fmt.Errorf("core: event type is required"))
	}

	record, created, err := s.deliveryStore.Reserve(ctx, in)
	if err != nil {
		return DeliveryRecord{}, false, s.mapError(err)
	}
	return record, created, nil
}

func (s *Service) CompleteDelivery(ctx context.Context, id string) error {
	if s == nil || s.deliveryStore == nil {
		return s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.mapError(fmt.Errorf("core: delivery id is required"))
	}
	if err := s.deliveryStore.MarkProcessed(ctx, id, s.clock()); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) FailDelivery(ctx context.Context, id string, cause error) error {
	if s == nil || s.deliveryStore == nil {
		return s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.mapError(fmt.Errorf("core: delivery id is required"))
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := s.deliveryStore.MarkFailed(ctx, id, message, s.clock()); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) ListDeliveries(ctx context.Context, installationID string, limit int) ([]DeliveryRecord, error) {
	if s == nil || s.deliveryStore == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return nil, s.mapError(fmt.Errorf("core: installation id is required"))
	}
	if limit <= 0 {
		limit = 50
	}
	items, err := s.deliveryStore.ListByInstallation(ctx, installationID, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return items, nil
}

func (s *Service) deleteDeliveries(ctx context.Context, installationID string) error {
	if s == nil || s.deliveryStore == nil {
		return nil
	}
	return s.deliveryStore.DeleteByInstallation(ctx, installationID)
}
