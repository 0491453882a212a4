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

// The four mirror stores share one shape: rows key on
// (installation_id, resource_id), and an upsert replaces the typed columns
// and payload wholesale so the newest platform snapshot always wins.

type ProductStore struct {
	db   *bun.DB
	repo repository.Repository[*productRecord]
}

func NewProductStore(db *bun.DB) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*productRecord](db, productHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid product repository wiring: %w", err)
		}
	}
	return &ProductStore{db: db, repo: repo}, nil
}

func (s *ProductStore) Upsert(ctx context.Context, in core.UpsertProductInput) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.InstallationID == "" || in.ResourceID == "" {
		return core.Product{}, fmt.Errorf("sqlstore: installation id and resource id are required")
	}

	now := time.Now().UTC()
	out, err := s.upsertTx(ctx, in, now)
	if err != nil && isUniqueViolation(err) {
		out, err = s.upsertTx(ctx, in, now)
	}
	if err != nil {
		return core.Product{}, err
	}
	return out, nil
}

func (s *ProductStore) upsertTx(ctx context.Context, in core.UpsertProductInput, now time.Time) (core.Product, error) {
	var out core.Product
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &productRecord{}
		err := findResourceTx(ctx, tx, record, in.InstallationID, in.ResourceID)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record = newProductRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.Title = in.Title
		record.SKU = in.SKU
		record.Price = in.Price
		record.Status = in.Status
		record.Payload = copyAnyMap(in.Payload)
		record.UpdatedAt = now
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
		return core.Product{}, err
	}
	return out, nil
}

func (s *ProductStore) Get(ctx context.Context, installationID string, resourceID string) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	record := &productRecord{}
	err := findResource(ctx, s.db, record, installationID, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Product{}, fmt.Errorf("sqlstore: product %q not found for installation %q", resourceID, installationID)
		}
		return core.Product{}, err
	}
	return record.toDomain(), nil
}

func (s *ProductStore) CountByInstallation(ctx context.Context, installationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: product store is not configured")
	}
	return s.db.NewSelect().
		Model((*productRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Count(ctx)
}

func (s *ProductStore) DeleteByInstallation(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: product store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*productRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Exec(ctx)
	return err
}

type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{db: db, repo: repo}, nil
}

func (s *OrderStore) Upsert(ctx context.Context, in core.UpsertOrderInput) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.InstallationID == "" || in.ResourceID == "" {
		return core.Order{}, fmt.Errorf("sqlstore: installation id and resource id are required")
	}

	now := time.Now().UTC()
	out, err := s.upsertTx(ctx, in, now)
	if err != nil && isUniqueViolation(err) {
		out, err = s.upsertTx(ctx, in, now)
	}
	if err != nil {
		return core.Order{}, err
	}
	return out, nil
}

func (s *OrderStore) upsertTx(ctx context.Context, in core.UpsertOrderInput, now time.Time) (core.Order, error) {
	var out core.Order
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &orderRecord{}
		err := findResourceTx(ctx, tx, record, in.InstallationID, in.ResourceID)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record = newOrderRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.OrderNumber = in.OrderNumber
		record.Total = in.Total
		record.Status = in.Status
		record.PlacedAt = copyTimePointer(in.PlacedAt)
		record.Payload = copyAnyMap(in.Payload)
		record.UpdatedAt = now
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
		return core.Order{}, err
	}
	return out, nil
}

func (s *OrderStore) Get(ctx context.Context, installationID string, resourceID string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	record := &orderRecord{}
	err := findResource(ctx, s.db, record, installationID, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Order{}, fmt.Errorf("sqlstore: order %q not found for installation %q", resourceID, installationID)
		}
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *OrderStore) CountByInstallation(ctx context.Context, installationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: order store is not configured")
	}
	return s.db.NewSelect().
		Model((*orderRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Count(ctx)
}

func (s *OrderStore) DeleteByInstallation(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*orderRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Exec(ctx)
	return err
}

type CustomerStore struct {
	db   *bun.DB
	repo repository.Repository[*customerRecord]
}

func NewCustomerStore(db *bun.DB) (*CustomerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*customerRecord](db, customerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid customer repository wiring: %w", err)
		}
	}
	return &CustomerStore{db: db, repo: repo}, nil
}

func (s *CustomerStore) Upsert(ctx context.Context, in core.UpsertCustomerInput) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.InstallationID == "" || in.ResourceID == "" {
		return core.Customer{}, fmt.Errorf("sqlstore: installation id and resource id are required")
	}

	now := time.Now().UTC()
	out, err := s.upsertTx(ctx, in, now)
	if err != nil && isUniqueViolation(err) {
		out, err = s.upsertTx(ctx, in, now)
	}
	if err != nil {
		return core.Customer{}, err
	}
	return out, nil
}

func (s *CustomerStore) upsertTx(ctx context.Context, in core.UpsertCustomerInput, now time.Time) (core.Customer, error) {
	var out core.Customer
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &customerRecord{}
		err := findResourceTx(ctx, tx, record, in.InstallationID, in.ResourceID)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record = newCustomerRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.Email = in.Email
		record.Name = in.Name
		record.Phone = in.Phone
		record.Payload = copyAnyMap(in.Payload)
		record.UpdatedAt = now
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
		return core.Customer{}, err
	}
	return out, nil
}

func (s *CustomerStore) Get(ctx context.Context, installationID string, resourceID string) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	record := &customerRecord{}
	err := findResource(ctx, s.db, record, installationID, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Customer{}, fmt.Errorf("sqlstore: customer %q not found for installation %q", resourceID, installationID)
		}
		return core.Customer{}, err
	}
	return record.toDomain(), nil
}

func (s *CustomerStore) CountByInstallation(ctx context.Context, installationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: customer store is not configured")
	}
	return s.db.NewSelect().
		Model((*customerRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Count(ctx)
}

func (s *CustomerStore) DeleteByInstallation(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: customer store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*customerRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Exec(ctx)
	return err
}

type RepStore struct {
	db   *bun.DB
	repo repository.Repository[*repRecord]
}

func NewRepStore(db *bun.DB) (*RepStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*repRecord](db, repHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rep repository wiring: %w", err)
		}
	}
	return &RepStore{db: db, repo: repo}, nil
}

func (s *RepStore) Upsert(ctx context.Context, in core.UpsertRepInput) (core.Rep, error) {
	if s == nil || s.db == nil {
		return core.Rep{}, fmt.Errorf("sqlstore: rep store is not configured")
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.InstallationID == "" || in.ResourceID == "" {
		return core.Rep{}, fmt.Errorf("sqlstore: installation id and resource id are required")
	}

	now := time.Now().UTC()
	out, err := s.upsertTx(ctx, in, now)
	if err != nil && isUniqueViolation(err) {
		out, err = s.upsertTx(ctx, in, now)
	}
	if err != nil {
		return core.Rep{}, err
	}
	return out, nil
}

func (s *RepStore) upsertTx(ctx context.Context, in core.UpsertRepInput, now time.Time) (core.Rep, error) {
	var out core.Rep
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &repRecord{}
		err := findResourceTx(ctx, tx, record, in.InstallationID, in.ResourceID)
		if err != nil {
			return err
		}
		if record.ID == "" {
			record = newRepRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.Email = in.Email
		record.Name = in.Name
		record.Role = in.Role
		record.Payload = copyAnyMap(in.Payload)
		record.UpdatedAt = now
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
		return core.Rep{}, err
	}
	return out, nil
}

func (s *RepStore) Get(ctx context.Context, installationID string, resourceID string) (core.Rep, error) {
	if s == nil || s.db == nil {
		return core.Rep{}, fmt.Errorf("sqlstore: rep store is not configured")
	}
	record := &repRecord{}
	err := findResource(ctx, s.db, record, installationID, resourceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Rep{}, fmt.Errorf("sqlstore: rep %q not found for installation %q", resourceID, installationID)
		}
		return core.Rep{}, err
	}
	return record.toDomain(), nil
}

func (s *RepStore) CountByInstallation(ctx context.Context, installationID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: rep store is not configured")
	}
	return s.db.NewSelect().
		Model((*repRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Count(ctx)
}

func (s *RepStore) DeleteByInstallation(ctx context.Context, installationID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rep store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*repRecord)(nil)).
		Where("installation_id = ?", strings.TrimSpace(installationID)).
		Exec(ctx)
	return err
}

func findResourceTx(ctx context.Context, tx bun.Tx, model any, installationID string, resourceID string) error {
	err := tx.NewSelect().
		Model(model).
		Where("?TableAlias.installation_id = ?", installationID).
		Where("?TableAlias.resource_id = ?", resourceID).
		Limit(1).
		Scan(ctx)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	return nil
}

func findResource(ctx context.Context, db *bun.DB, model any, installationID string, resourceID string) error {
	return db.NewSelect().
		Model(model).
		Where("?TableAlias.installation_id = ?", strings.TrimSpace(installationID)).
		Where("?TableAlias.resource_id = ?", strings.TrimSpace(resourceID)).
		Limit(1).
		Scan(ctx)
}
