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

type InstallationStore struct {
	db   *bun.DB
	repo repository.Repository[*installationRecord]
}

func NewInstallationStore(db *bun.DB) (*InstallationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*installationRecord](db, installationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid installation repository wiring: %w", err)
		}
	}
	return &InstallationStore{
		db:   db,
		repo: repo,
	}, nil
}

// Upsert merges by the platform-assigned installation id. Empty input fields
// leave the stored values alone; maps replace wholesale when present. Two
// writers racing on the same fresh id both land on the one row the unique
// index lets through.
func (s *InstallationStore) Upsert(ctx context.Context, in core.UpsertInstallationInput) (core.Installation, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	if in.InstallationID == "" {
		return core.Installation{}, fmt.Errorf("sqlstore: installation id is required")
	}

	now := time.Now().UTC()
	out, err := s.upsertTx(ctx, in, now)
	if err != nil && isUniqueViolation(err) {
		out, err = s.upsertTx(ctx, in, now)
	}
	if err != nil {
		return core.Installation{}, err
	}
	return out, nil
}

func (s *InstallationStore) upsertTx(ctx context.Context, in core.UpsertInstallationInput, now time.Time) (core.Installation, error) {
	var out core.Installation
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findInstallationTx(ctx, tx, in.InstallationID)
		if err != nil {
			return err
		}
		if record == nil {
			record = newInstallationRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		applyInstallationInput(record, in, now)
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Installation{}, err
	}
	return out, nil
}

func (s *InstallationStore) Get(ctx context.Context, id string) (core.Installation, error) {
	if s == nil || s.db == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	record := &installationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Installation{}, core.ErrInstallationNotFound
		}
		return core.Installation{}, err
	}
	return record.toDomain(), nil
}

func (s *InstallationStore) GetByInstallationID(ctx context.Context, installationID string) (core.Installation, error) {
	if s == nil || s.db == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return core.Installation{}, err
	}
	return record.toDomain(), nil
}

// GetByShopDomain resolves the newest row for a shop; a shop that
// reinstalled under a new installation id wins over its older rows.
func (s *InstallationStore) GetByShopDomain(ctx context.Context, shopDomain string) (core.Installation, error) {
	if s == nil || s.db == nil {
		return core.Installation{}, fmt.Errorf("sqlstore: installation store is not configured")
	}
	shopDomain = strings.TrimSpace(strings.ToLower(shopDomain))
	if shopDomain == "" {
		return core.Installation{}, core.ErrInstallationNotFound
	}
	record := &installationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("lower(?TableAlias.shop_domain) = ?", shopDomain).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Installation{}, core.ErrInstallationNotFound
		}
		return core.Installation{}, err
	}
	return record.toDomain(), nil
}

func (s *InstallationStore) List(ctx context.Context, filter core.InstallationFilter) ([]core.Installation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: installation store is not configured")
	}
	criteria := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		criteria = append(criteria, repository.SelectBy("status", "=", status))
	}
	if companyID := strings.TrimSpace(filter.CompanyID); companyID != "" {
		criteria = append(criteria, repository.SelectBy("company_id", "=", companyID))
	}
	if filter.PerPage > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		criteria = append(criteria, repository.SelectPaginate(filter.PerPage, (page-1)*filter.PerPage))
	}

	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Installation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpdateStatus trusts the caller's transition; the service validates the
// state machine before it gets here.
func (s *InstallationStore) UpdateStatus(ctx context.Context, installationID string, status string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	installationID = strings.TrimSpace(installationID)
	status = strings.TrimSpace(status)
	if installationID == "" || status == "" {
		return fmt.Errorf("sqlstore: installation id and status are required")
	}

	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	record.Status = status
	record.Metadata = copyAnyMap(record.Metadata)
	if strings.TrimSpace(reason) != "" {
		record.Metadata["status_reason"] = strings.TrimSpace(reason)
	}
	record.UpdatedAt = now
	_, err = s.db.NewUpdate().
		Model(record).
		Where("id = ?", record.ID).
		Exec(ctx)
	return err
}

func (s *InstallationStore) SaveCredential(ctx context.Context, installationID string, encryptedToken []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*installationRecord)(nil)).
		Set("encrypted_token = ?", append([]byte(nil), encryptedToken...)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", record.ID).
		Exec(ctx)
	return err
}

func (s *InstallationStore) Credential(ctx context.Context, installationID string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), record.EncryptedToken...), nil
}

func (s *InstallationStore) SaveConfiguration(ctx context.Context, installationID string, configuration map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return err
	}
	record.Configuration = copyAnyMap(configuration)
	record.UpdatedAt = time.Now().UTC()
	_, err = s.db.NewUpdate().
		Model(record).
		Where("id = ?", record.ID).
		Exec(ctx)
	return err
}

func (s *InstallationStore) Delete(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: installation store is not configured")
	}
	record, err := s.findInstallation(ctx, installationID)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*installationRecord)(nil)).
		Where("id = ?", record.ID).
		Exec(ctx)
	return err
}

func (s *InstallationStore) findInstallation(ctx context.Context, installationID string) (*installationRecord, error) {
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return nil, core.ErrInstallationNotFound
	}
	record := &installationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.installation_id = ?", installationID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrInstallationNotFound
		}
		return nil, err
	}
	return record, nil
}

func findInstallationTx(ctx context.Context, tx bun.Tx, installationID string) (*installationRecord, error) {
	record := &installationRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.installation_id = ?", strings.TrimSpace(installationID)).
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

func applyInstallationInput(record *installationRecord, in core.UpsertInstallationInput, now time.Time) {
	if in.CompanyID != "" {
		record.CompanyID = in.CompanyID
	}
	if in.CompanyName != "" {
		record.CompanyName = in.CompanyName
	}
	if in.ShopDomain != "" {
		record.ShopDomain = in.ShopDomain
	}
	if in.WebhookVerificationToken != "" {
		record.WebhookVerificationToken = in.WebhookVerificationToken
	}
	if in.Status != "" {
		record.Status = string(in.Status)
	}
	if in.Configuration != nil {
		record.Configuration = copyAnyMap(in.Configuration)
	}
	if in.Metadata != nil {
		record.Metadata = copyAnyMap(in.Metadata)
	}
	if len(in.EncryptedToken) > 0 {
		record.EncryptedToken = append([]byte(nil), in.EncryptedToken...)
	}
	record.UpdatedAt = now
}
