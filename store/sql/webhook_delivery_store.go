package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-droplet/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
	}, nil
}

// Reserve claims a delivery id for processing. A duplicate of a pending or
// processed row comes back with created=false so the caller can ack without
// re-handling; a duplicate of a failed row re-claims it for another attempt.
func (s *WebhookDeliveryStore) Reserve(ctx context.Context, in core.ReserveDeliveryInput) (core.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.DeliveryID = strings.TrimSpace(in.DeliveryID)
	if in.InstallationID == "" || in.DeliveryID == "" {
		return core.DeliveryRecord{}, false, fmt.Errorf("sqlstore: installation id and delivery id are required")
	}

	now := time.Now().UTC()
	record := newDeliveryRecord(in, now)
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.DeliveryRecord{}, false, err
		}
		existing, findErr := s.findByDeliveryKey(ctx, in.InstallationID, in.DeliveryID)
		if findErr != nil {
			return core.DeliveryRecord{}, false, findErr
		}
		if existing == nil {
			return core.DeliveryRecord{}, false, err
		}
		if !existing.Processed && strings.TrimSpace(existing.Error) != "" {
			existing.Error = ""
			existing.UpdatedAt = now
			if _, updateErr := s.db.NewUpdate().
				Model((*deliveryRecord)(nil)).
				Set("error = ?", "").
				Set("updated_at = ?", now).
				Where("id = ?", existing.ID).
				Exec(ctx); updateErr != nil {
				return core.DeliveryRecord{}, false, updateErr
			}
			return existing.toDomain(), true, nil
		}
		return existing.toDomain(), false, nil
	}
	return record.toDomain(), true, nil
}

func (s *WebhookDeliveryStore) Get(ctx context.Context, id string) (core.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return core.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery %q not found", id)
		}
		return core.DeliveryRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookDeliveryStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	processedAt = processedAt.UTC()
	_, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("processed = ?", true).
		Set("processed_at = ?", processedAt).
		Set("error = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) MarkFailed(ctx context.Context, id string, cause string, failedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("processed = ?", false).
		Set("error = ?", cause).
		Set("updated_at = ?", failedAt.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) ListByInstallation(ctx context.Context, installationID string, limit int) ([]core.DeliveryRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return nil, fmt.Errorf("sqlstore: installation id is required")
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("installation_id", "=", installationID),
		repository.OrderBy("created_at DESC"),
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.DeliveryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WebhookDeliveryStore) DeleteByInstallation(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return fmt.Errorf("sqlstore: installation id is required")
	}
	_, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("installation_id = ?", installationID).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) findByDeliveryKey(ctx context.Context, installationID string, deliveryID string) (*deliveryRecord, error) {
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.installation_id = ?", installationID).
		Where("?TableAlias.delivery_id = ?", deliveryID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
