package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ApplyResourceEvent upserts one resource mirror row from a normalized
// platform event. Replayed deliveries land on the same
// (installation id, resource id) row; the last payload wins.
func (s *Service) ApplyResourceEvent(ctx context.Context, in ResourceEventInput) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": in.InstallationID,
		"resource_kind":   string(in.Kind),
		"event_type":      in.EventType,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "apply_resource_event", err, fields)
	}()

	if s == nil {
		return fmt.Errorf("core: service is required")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.EventType = strings.TrimSpace(strings.ToLower(in.EventType))
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.InstallationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return err
	}
	kind, kindErr := ParseResourceKind(string(in.Kind))
	if kindErr != nil {
		err = s.mapError(kindErr)
		return err
	}
	if in.ResourceID == "" {
		in.ResourceID = firstString(in.Payload, "id", "uuid", "resource_id")
	}
	if in.ResourceID == "" {
		err = s.mapError(fmt.Errorf("core: resource id is required"))
		return err
	}
	fields["resource_id"] = in.ResourceID
	payload := copyAnyMap(in.Payload)

	switch kind {
	case ResourceKindProduct:
		if s.productStore == nil {
			err = s.mapError(fmt.Errorf("core: product store is required"))
			return err
		}
		status := firstString(payload, "status", "state")
		if in.EventType == "destroyed" {
			status = "destroyed"
		}
		_, err = s.productStore.Upsert(ctx, UpsertProductInput{
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			Title:          firstString(payload, "title", "name"),
			SKU:            firstString(payload, "sku"),
			Price:          firstString(payload, "price", "amount"),
			Status:         status,
			Payload:        payload,
		})
	case ResourceKindOrder:
		if s.orderStore == nil {
			err = s.mapError(fmt.Errorf("core: order store is required"))
			return err
		}
		_, err = s.orderStore.Upsert(ctx, UpsertOrderInput{
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			OrderNumber:    firstString(payload, "order_number", "number", "order_id"),
			Total:          firstString(payload, "total", "total_amount", "amount"),
			Status:         firstString(payload, "status", "state"),
			PlacedAt:       readTimePointer(payload, "placed_at", "created_at", "ordered_at"),
			Payload:        payload,
		})
	case ResourceKindCustomer:
		if s.customerStore == nil {
			err = s.mapError(fmt.Errorf("core: customer store is required"))
			return err
		}
		_, err = s.customerStore.Upsert(ctx, UpsertCustomerInput{
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			Email:          firstString(payload, "email"),
			Name:           readPersonName(payload),
			Phone:          firstString(payload, "phone", "phone_number"),
			Payload:        payload,
		})
	case ResourceKindRep:
		if s.repStore == nil {
			err = s.mapError(fmt.Errorf("core: rep store is required"))
			return err
		}
		_, err = s.repStore.Upsert(ctx, UpsertRepInput{
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			Email:          firstString(payload, "email"),
			Name:           readPersonName(payload),
			Role:           firstString(payload, "role", "title"),
			Payload:        payload,
		})
	}
	if err != nil {
		err = s.mapError(err)
		return err
	}

	s.recordActivity(ctx, in.InstallationID, ActivityResourceUpserted, ActivityStatusSuccess, string(kind)+" "+in.EventType, map[string]any{
		"resource_kind": string(kind),
		"resource_id":   in.ResourceID,
		"event_type":    in.EventType,
	})
	return nil
}

func (s *Service) Dashboard(ctx context.Context, installationID string) (DashboardSummary, error) {
	installation, err := s.GetInstallation(ctx, installationID)
	if err != nil {
		return DashboardSummary{}, err
	}
	counts, err := s.CountResources(ctx, installation.InstallationID)
	if err != nil {
		return DashboardSummary{}, err
	}
	recent, err := s.ListActivity(ctx, ActivityFilter{
		InstallationID: installation.InstallationID,
		Page:           1,
		PerPage:        10,
	})
	if err != nil {
		return DashboardSummary{}, err
	}
	return DashboardSummary{
		Installation:   installation,
		Counts:         counts,
		RecentActivity: recent.Items,
	}, nil
}

func (s *Service) CountResources(ctx context.Context, installationID string) (ResourceCounts, error) {
	if s == nil {
		return ResourceCounts{}, fmt.Errorf("core: service is required")
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return ResourceCounts{}, s.mapError(fmt.Errorf("core: installation id is required"))
	}

	counts := ResourceCounts{}
	if s.productStore != nil {
		total, err := s.productStore.CountByInstallation(ctx, installationID)
		if err != nil {
			return ResourceCounts{}, s.mapError(err)
		}
		counts.Products = total
	}
	if s.orderStore != nil {
		total, err := s.orderStore.CountByInstallation(ctx, installationID)
		if err != nil {
			return ResourceCounts{}, s.mapError(err)
		}
		counts.Orders = total
	}
	if s.customerStore != nil {
		total, err := s.customerStore.CountByInstallation(ctx, installationID)
		if err != nil {
			return ResourceCounts{}, s.mapError(err)
		}
		counts.Customers = total
	}
	if s.repStore != nil {
		total, err := s.repStore.CountByInstallation(ctx, installationID)
		if err != nil {
			return ResourceCounts{}, s.mapError(err)
		}
		counts.Reps = total
	}
	return counts, nil
}

func (s *Service) deleteProducts(ctx context.Context, installationID string) error {
	if s == nil || s.productStore == nil {
		return nil
	}
	return s.productStore.DeleteByInstallation(ctx, installationID)
}

func (s *Service) deleteOrders(ctx context.Context, installationID string) error {
	if s == nil || s.orderStore == nil {
		return nil
	}
	return s.orderStore.DeleteByInstallation(ctx, installationID)
}

func (s *Service) deleteCustomers(ctx context.Context, installationID string) error {
	if s == nil || s.customerStore == nil {
		return nil
	}
	return s.customerStore.DeleteByInstallation(ctx, installationID)
}

func (s *Service) deleteReps(ctx context.Context, installationID string) error {
	if s == nil || s.repStore == nil {
		return nil
	}
	return s.repStore.DeleteByInstallation(ctx, installationID)
}

func readPersonName(payload map[string]any) string {
	if name := firstString(payload, "name", "full_name"); name != "" {
		return name
	}
	first := firstString(payload, "first_name")
	last := firstString(payload, "last_name")
	return strings.TrimSpace(first + " " + last)
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(readString(payload[key])); value != "" {
			return value
		}
	}
	return ""
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	case json.Number:
		return typed.String()
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		if typed == float64(int64(typed)) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return ""
	}
}

func readTimePointer(payload map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		raw := strings.TrimSpace(readString(payload[key]))
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		}
	}
	return nil
}
