package sqlstore

import (
	"time"

	"github.com/goliatone/go-droplet/core"
)

func newInstallationRecord(in core.UpsertInstallationInput, now time.Time) *installationRecord {
	return &installationRecord{
		InstallationID:           in.InstallationID,
		CompanyID:                in.CompanyID,
		CompanyName:              in.CompanyName,
		ShopDomain:               in.ShopDomain,
		EncryptedToken:           append([]byte(nil), in.EncryptedToken...),
		WebhookVerificationToken: in.WebhookVerificationToken,
		Status:                   string(in.Status),
		Configuration:            copyAnyMap(in.Configuration),
		Metadata:                 copyAnyMap(in.Metadata),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// toDomain never surfaces the encrypted token; callers read credentials
// through InstallationStore.Credential.
func (r *installationRecord) toDomain() core.Installation {
	if r == nil {
		return core.Installation{}
	}
	return core.Installation{
		ID:                       r.ID,
		InstallationID:           r.InstallationID,
		CompanyID:                r.CompanyID,
		CompanyName:              r.CompanyName,
		ShopDomain:               r.ShopDomain,
		WebhookVerificationToken: r.WebhookVerificationToken,
		Status:                   core.InstallationStatus(r.Status),
		Configuration:            copyAnyMap(r.Configuration),
		Metadata:                 copyAnyMap(r.Metadata),
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func newDeliveryRecord(in core.ReserveDeliveryInput, now time.Time) *deliveryRecord {
	return &deliveryRecord{
		InstallationID: in.InstallationID,
		DeliveryID:     in.DeliveryID,
		EventType:      in.EventType,
		Payload:        copyAnyMap(in.Payload),
		Processed:      false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *deliveryRecord) toDomain() core.DeliveryRecord {
	if r == nil {
		return core.DeliveryRecord{}
	}
	record := core.DeliveryRecord{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		DeliveryID:     r.DeliveryID,
		EventType:      r.EventType,
		Payload:        copyAnyMap(r.Payload),
		Processed:      r.Processed,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ProcessedAt != nil {
		value := *r.ProcessedAt
		record.ProcessedAt = &value
	}
	return record
}

func newActivityRecord(entry core.ActivityEntry) *activityRecord {
	return &activityRecord{
		ID:             entry.ID,
		InstallationID: entry.InstallationID,
		ActivityType:   entry.ActivityType,
		Status:         string(entry.Status),
		Details:        entry.Details,
		Metadata:       copyAnyMap(entry.Metadata),
		CreatedAt:      entry.CreatedAt,
	}
}

func (r *activityRecord) toDomain() core.ActivityEntry {
	if r == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		ActivityType:   r.ActivityType,
		Status:         core.ActivityStatus(r.Status),
		Details:        r.Details,
		Metadata:       copyAnyMap(r.Metadata),
		CreatedAt:      r.CreatedAt,
	}
}

func newProductRecord(in core.UpsertProductInput, now time.Time) *productRecord {
	return &productRecord{
		InstallationID: in.InstallationID,
		ResourceID:     in.ResourceID,
		Title:          in.Title,
		SKU:            in.SKU,
		Price:          in.Price,
		Status:         in.Status,
		Payload:        copyAnyMap(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *productRecord) toDomain() core.Product {
	if r == nil {
		return core.Product{}
	}
	return core.Product{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		ResourceID:     r.ResourceID,
		Title:          r.Title,
		SKU:            r.SKU,
		Price:          r.Price,
		Status:         r.Status,
		Payload:        copyAnyMap(r.Payload),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newOrderRecord(in core.UpsertOrderInput, now time.Time) *orderRecord {
	record := &orderRecord{
		InstallationID: in.InstallationID,
		ResourceID:     in.ResourceID,
		OrderNumber:    in.OrderNumber,
		Total:          in.Total,
		Status:         in.Status,
		Payload:        copyAnyMap(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.PlacedAt != nil {
		value := *in.PlacedAt
		record.PlacedAt = &value
	}
	return record
}

func (r *orderRecord) toDomain() core.Order {
	if r == nil {
		return core.Order{}
	}
	order := core.Order{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		ResourceID:     r.ResourceID,
		OrderNumber:    r.OrderNumber,
		Total:          r.Total,
		Status:         r.Status,
		Payload:        copyAnyMap(r.Payload),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.PlacedAt != nil {
		value := *r.PlacedAt
		order.PlacedAt = &value
	}
	return order
}

func newCustomerRecord(in core.UpsertCustomerInput, now time.Time) *customerRecord {
	return &customerRecord{
		InstallationID: in.InstallationID,
		ResourceID:     in.ResourceID,
		Email:          in.Email,
		Name:           in.Name,
		Phone:          in.Phone,
		Payload:        copyAnyMap(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *customerRecord) toDomain() core.Customer {
	if r == nil {
		return core.Customer{}
	}
	return core.Customer{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		ResourceID:     r.ResourceID,
		Email:          r.Email,
		Name:           r.Name,
		Phone:          r.Phone,
		Payload:        copyAnyMap(r.Payload),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newRepRecord(in core.UpsertRepInput, now time.Time) *repRecord {
	return &repRecord{
		InstallationID: in.InstallationID,
		ResourceID:     in.ResourceID,
		Email:          in.Email,
		Name:           in.Name,
		Role:           in.Role,
		Payload:        copyAnyMap(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *repRecord) toDomain() core.Rep {
	if r == nil {
		return core.Rep{}
	}
	return core.Rep{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		ResourceID:     r.ResourceID,
		Email:          r.Email,
		Name:           r.Name,
		Role:           r.Role,
		Payload:        copyAnyMap(r.Payload),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}
