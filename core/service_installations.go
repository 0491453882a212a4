package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"
)

type UpsertInstallationRequest struct {
	InstallationID           string
	CompanyID                string
	CompanyName              string
	ShopDomain               string
	AuthenticationToken      string
	WebhookVerificationToken string
	Status                   InstallationStatus
	Configuration            map[string]any
	Metadata                 map[string]any
}

// UpsertInstallation creates or refreshes the row identified by the
// platform-assigned installation id. A fresh install event on an inactive or
// failed row reopens it to pending; a status the state machine rejects falls
// back to the row's current status so replayed events never error.
func (s *Service) UpsertInstallation(ctx context.Context, req UpsertInstallationRequest) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": req.InstallationID,
		"company_id":      req.CompanyID,
		"shop_domain":     req.ShopDomain,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "upsert_installation", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = s.mapError(fmt.Errorf("core: installation store is required"))
		return Installation{}, err
	}

	req.InstallationID = strings.TrimSpace(req.InstallationID)
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.ShopDomain = normalizeShopDomain(req.ShopDomain)
	if req.InstallationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return Installation{}, err
	}
	target := req.Status
	if strings.TrimSpace(string(target)) == "" {
		target = InstallationStatusPending
	}

	status := target
	reopened := false
	existing, findErr := s.installationStore.GetByInstallationID(ctx, req.InstallationID)
	if findErr == nil && existing.ID != "" {
		status = existing.Status
		if existing.Status == target {
			status = target
		} else if installationTransitionAllowed(existing.Status, target) {
			status = target
			reopened = existing.Status == InstallationStatusInactive || existing.Status == InstallationStatusFailed
		}
	}

	var encrypted []byte
	if strings.TrimSpace(req.AuthenticationToken) != "" {
		encrypted, err = s.sealToken(ctx, req.AuthenticationToken, "upsert")
		if err != nil {
			err = s.mapError(err)
			return Installation{}, err
		}
	}

	installation, err = s.installationStore.Upsert(ctx, UpsertInstallationInput{
		InstallationID:           req.InstallationID,
		CompanyID:                req.CompanyID,
		CompanyName:              req.CompanyName,
		ShopDomain:               req.ShopDomain,
		EncryptedToken:           encrypted,
		WebhookVerificationToken: strings.TrimSpace(req.WebhookVerificationToken),
		Status:                   status,
		Configuration:            copyAnyMap(req.Configuration),
		Metadata:                 copyAnyMap(req.Metadata),
	})
	if err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}

	details := "installation upserted"
	if reopened {
		details = "installation reopened"
		fields["reopened"] = true
	}
	s.recordActivity(ctx, installation.InstallationID, ActivityInstallationUpserted, ActivityStatusSuccess, details, map[string]any{
		"company_id":  installation.CompanyID,
		"shop_domain": installation.ShopDomain,
		"status":      string(installation.Status),
	})
	return installation, nil
}

func (s *Service) GetInstallation(ctx context.Context, installationID string) (Installation, error) {
	if s == nil || s.installationStore == nil {
		return Installation{}, s.mapError(fmt.Errorf("core: installation store is required"))
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return Installation{}, s.mapError(fmt.Errorf("core: installation id is required"))
	}
	record, err := s.installationStore.GetByInstallationID(ctx, installationID)
	if err != nil {
		return Installation{}, s.mapError(err)
	}
	return record, nil
}

// GetInstallationByShopDomain resolves the installation that owns a shop
// identifier, which is how resource webhooks without an installation id in
// the payload find their tenant.
func (s *Service) GetInstallationByShopDomain(ctx context.Context, shopDomain string) (Installation, error) {
	if s == nil || s.installationStore == nil {
		return Installation{}, s.mapError(fmt.Errorf("core: installation store is required"))
	}
	shopDomain = normalizeShopDomain(shopDomain)
	if shopDomain == "" {
		return Installation{}, s.mapError(fmt.Errorf("core: shop domain is required"))
	}
	record, err := s.installationStore.GetByShopDomain(ctx, shopDomain)
	if err != nil {
		return Installation{}, s.mapError(err)
	}
	return record, nil
}

// GetInstallationByToken resolves the installation and proves the caller
// holds its durable credential. The compare is constant time; the mismatch
// error carries no detail about which side differed.
func (s *Service) GetInstallationByToken(ctx context.Context, installationID string, token string) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": installationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "authenticate_installation", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = s.mapError(fmt.Errorf("core: installation store is required"))
		return Installation{}, err
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return Installation{}, err
	}

	installation, err = s.installationStore.GetByInstallationID(ctx, installationID)
	if err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}

	durable, credErr := s.durableToken(ctx, installationID)
	if credErr != nil || strings.TrimSpace(durable.Token) == "" {
		err = s.mapError(ErrCredentialMismatch)
		return Installation{}, err
	}
	if subtle.ConstantTimeCompare([]byte(durable.Token), []byte(strings.TrimSpace(token))) != 1 {
		err = s.mapError(ErrCredentialMismatch)
		return Installation{}, err
	}
	return installation, nil
}

// InstallationCredential returns the decrypted durable credential for
// outbound platform calls. Callers must never log or persist the value.
func (s *Service) InstallationCredential(ctx context.Context, installationID string) (string, error) {
	if s == nil || s.installationStore == nil {
		return "", s.mapError(fmt.Errorf("core: installation store is required"))
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return "", s.mapError(fmt.Errorf("core: installation id is required"))
	}
	durable, err := s.durableToken(ctx, installationID)
	if err != nil {
		return "", s.mapError(err)
	}
	return durable.Token, nil
}

func (s *Service) ListInstallations(ctx context.Context, filter InstallationFilter) ([]Installation, error) {
	if s == nil || s.installationStore == nil {
		return nil, s.mapError(fmt.Errorf("core: installation store is required"))
	}
	filter.Status = strings.TrimSpace(strings.ToLower(filter.Status))
	filter.CompanyID = strings.TrimSpace(filter.CompanyID)
	items, err := s.installationStore.List(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return items, nil
}

// ActivateInstallation stores the durable credential encrypted and moves the
// installation to active. The credential is required; activation without one
// is rejected by the state machine.
func (s *Service) ActivateInstallation(ctx context.Context, installationID string, token string, metadata map[string]any) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": installationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "activate_installation", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = s.mapError(fmt.Errorf("core: installation store is required"))
		return Installation{}, err
	}
	installationID = strings.TrimSpace(installationID)
	token = strings.TrimSpace(token)
	if installationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return Installation{}, err
	}
	if token == "" {
		err = s.mapError(fmt.Errorf("%w: installation %q", ErrCredentialRequired, installationID))
		return Installation{}, err
	}

	installation, err = s.installationStore.GetByInstallationID(ctx, installationID)
	if err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}

	installation.AuthenticationToken = token
	if err = installation.TransitionTo(InstallationStatusActive, s.clock()); err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}

	encrypted, sealErr := s.sealToken(ctx, token, "activation")
	if sealErr != nil {
		err = s.mapError(sealErr)
		return Installation{}, err
	}
	if err = s.installationStore.SaveCredential(ctx, installationID, encrypted); err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}
	if err = s.installationStore.UpdateStatus(ctx, installationID, string(InstallationStatusActive), ""); err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}
	installation.AuthenticationToken = ""

	s.recordActivity(ctx, installationID, ActivityInstallationActivated, ActivityStatusSuccess, "installation activated", metadata)
	return installation, nil
}

func (s *Service) DeactivateInstallation(ctx context.Context, installationID string, reason string) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": installationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "deactivate_installation", err, fields)
	}()

	installation, err = s.transitionInstallation(ctx, installationID, InstallationStatusInactive, reason)
	if err != nil {
		return Installation{}, err
	}
	s.recordActivity(ctx, installationID, ActivityInstallationDeactivated, ActivityStatusSuccess, "installation deactivated", map[string]any{
		"reason": strings.TrimSpace(reason),
	})
	return installation, nil
}

func (s *Service) FailInstallation(ctx context.Context, installationID string, cause string) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": installationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "fail_installation", err, fields)
	}()

	installation, err = s.transitionInstallation(ctx, installationID, InstallationStatusFailed, cause)
	if err != nil {
		return Installation{}, err
	}
	s.recordActivity(ctx, installationID, ActivityInstallationFailed, ActivityStatusError, "installation failed", map[string]any{
		"cause": strings.TrimSpace(cause),
	})
	return installation, nil
}

// SubmitConfiguration is the tenant REST path. It rides the same natural-key
// upsert as the webhook path, so a race between the two converges on one row;
// a tenant-supplied credential drives the row straight to active.
func (s *Service) SubmitConfiguration(ctx context.Context, in SubmitConfigurationInput) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": in.InstallationID,
		"company_id":      in.CompanyID,
		"shop_domain":     in.ShopDomain,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "submit_configuration", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = s.mapError(fmt.Errorf("core: installation store is required"))
		return Installation{}, err
	}
	in.InstallationID = strings.TrimSpace(in.InstallationID)
	if in.InstallationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return Installation{}, err
	}

	installation, err = s.UpsertInstallation(ctx, UpsertInstallationRequest{
		InstallationID: in.InstallationID,
		CompanyID:      in.CompanyID,
		CompanyName:    in.CompanyName,
		ShopDomain:     in.ShopDomain,
		Configuration:  in.Configuration,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return Installation{}, err
	}

	if len(in.Configuration) > 0 {
		if err = s.installationStore.SaveConfiguration(ctx, in.InstallationID, copyAnyMap(in.Configuration)); err != nil {
			err = s.mapError(err)
			return Installation{}, err
		}
		installation.Configuration = copyAnyMap(in.Configuration)
	}

	token := strings.TrimSpace(in.AuthenticationToken)
	if token != "" && installation.Status == InstallationStatusPending {
		installation, err = s.ActivateInstallation(ctx, in.InstallationID, token, map[string]any{
			"source": "configuration",
		})
		if err != nil {
			return Installation{}, err
		}
	}

	s.recordActivity(ctx, in.InstallationID, ActivityConfigurationSubmitted, ActivityStatusSuccess, "configuration submitted", map[string]any{
		"status": string(installation.Status),
	})
	return installation, nil
}

// DeleteInstallation is the tenant disconnect path: resource mirrors,
// deliveries, and the activity trail all go with the row.
func (s *Service) DeleteInstallation(ctx context.Context, installationID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": installationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_installation", err, fields)
	}()

	if s == nil || s.installationStore == nil {
		err = s.mapError(fmt.Errorf("core: installation store is required"))
		return err
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return err
	}

	if _, err = s.installationStore.GetByInstallationID(ctx, installationID); err != nil {
		err = s.mapError(err)
		return err
	}

	cascade := []struct {
		name   string
		delete func(context.Context, string) error
	}{
		{"products", s.deleteProducts},
		{"orders", s.deleteOrders},
		{"customers", s.deleteCustomers},
		{"reps", s.deleteReps},
		{"deliveries", s.deleteDeliveries},
		{"activity", s.deleteActivity},
	}
	for _, step := range cascade {
		if stepErr := step.delete(ctx, installationID); stepErr != nil {
			err = s.mapError(fmt.Errorf("core: delete %s for installation %q: %w", step.name, installationID, stepErr))
			return err
		}
	}

	if err = s.installationStore.Delete(ctx, installationID); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) transitionInstallation(ctx context.Context, installationID string, target InstallationStatus, reason string) (Installation, error) {
	if s == nil || s.installationStore == nil {
		return Installation{}, s.mapError(fmt.Errorf("core: installation store is required"))
	}
	installationID = strings.TrimSpace(installationID)
	if installationID == "" {
		return Installation{}, s.mapError(fmt.Errorf("core: installation id is required"))
	}

	installation, err := s.installationStore.GetByInstallationID(ctx, installationID)
	if err != nil {
		return Installation{}, s.mapError(err)
	}
	if err := installation.TransitionTo(target, s.clock()); err != nil {
		return Installation{}, s.mapError(err)
	}

	if err := s.installationStore.UpdateStatus(ctx, installationID, string(target), strings.TrimSpace(reason)); err != nil {
		return Installation{}, s.mapError(err)
	}
	return installation, nil
}

func (s *Service) sealToken(ctx context.Context, token string, source string) ([]byte, error) {
	if s == nil || s.secretProvider == nil {
		return nil, fmt.Errorf("core: secret provider is required to store credentials")
	}
	codec := s.tokenCodec
	if codec == nil {
		codec = JSONTokenCodec{}
	}
	issuedAt := s.clock()
	payload, err := codec.Encode(DurableToken{
		Token:    strings.TrimSpace(token),
		Source:   strings.TrimSpace(source),
		IssuedAt: &issuedAt,
	})
	if err != nil {
		return nil, err
	}
	return s.secretProvider.Encrypt(ctx, payload)
}

func (s *Service) durableToken(ctx context.Context, installationID string) (DurableToken, error) {
	sealed, err := s.installationStore.Credential(ctx, installationID)
	if err != nil {
		return DurableToken{}, err
	}
	if len(sealed) == 0 {
		return DurableToken{}, nil
	}
	if s.secretProvider == nil {
		return DurableToken{}, fmt.Errorf("core: secret provider is required to read credentials")
	}
	plaintext, err := s.secretProvider.Decrypt(ctx, sealed)
	if err != nil {
		return DurableToken{}, err
	}
	codec := s.tokenCodec
	if codec == nil {
		codec = JSONTokenCodec{}
	}
	return codec.Decode(plaintext)
}

func normalizeShopDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.TrimSuffix(domain, "/")
}
