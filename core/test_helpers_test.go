package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type memoryInstallationStore struct {
	mu          sync.Mutex
	next        int
	byID        map[string]Installation
	byKey       map[string]string
	credentials map[string][]byte
}

func newMemoryInstallationStore() *memoryInstallationStore {
	return &memoryInstallationStore{
		byID:        map[string]Installation{},
		byKey:       map[string]string{},
		credentials: map[string][]byte{},
	}
}

func (s *memoryInstallationStore) Upsert(_ context.Context, in UpsertInstallationInput) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.InstallationID = strings.TrimSpace(in.InstallationID)
	if in.InstallationID == "" {
		return Installation{}, fmt.Errorf("installation id is required")
	}
	id := s.byKey[in.InstallationID]
	if id == "" {
		s.next++
		id = fmt.Sprintf("inst_%d", s.next)
		s.byKey[in.InstallationID] = id
	}
	record := s.byID[id]
	record.ID = id
	record.InstallationID = in.InstallationID
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
		record.Status = in.Status
	}
	if in.Configuration != nil {
		record.Configuration = copyAnyMap(in.Configuration)
	}
	if in.Metadata != nil {
		record.Metadata = copyAnyMap(in.Metadata)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if len(in.EncryptedToken) > 0 {
		s.credentials[in.InstallationID] = append([]byte(nil), in.EncryptedToken...)
	}
	s.byID[id] = record
	return record, nil
}

func (s *memoryInstallationStore) Get(_ context.Context, id string) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return Installation{}, ErrInstallationNotFound
	}
	return record, nil
}

func (s *memoryInstallationStore) GetByInstallationID(_ context.Context, installationID string) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.byKey[strings.TrimSpace(installationID)]
	if id == "" {
		return Installation{}, ErrInstallationNotFound
	}
	return s.byID[id], nil
}

func (s *memoryInstallationStore) GetByShopDomain(_ context.Context, shopDomain string) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shopDomain = strings.TrimSpace(strings.ToLower(shopDomain))
	var found Installation
	var ok bool
	for _, record := range s.byID {
		if strings.ToLower(record.ShopDomain) != shopDomain {
			continue
		}
		if !ok || record.UpdatedAt.After(found.UpdatedAt) {
			found = record
			ok = true
		}
	}
	if !ok {
		return Installation{}, ErrInstallationNotFound
	}
	return found, nil
}

func (s *memoryInstallationStore) List(_ context.Context, filter InstallationFilter) ([]Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Installation{}
	for _, record := range s.byID {
		if filter.Status != "" && string(record.Status) != filter.Status {
			continue
		}
		if filter.CompanyID != "" && record.CompanyID != filter.CompanyID {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryInstallationStore) UpdateStatus(_ context.Context, installationID string, status string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.byKey[strings.TrimSpace(installationID)]
	if id == "" {
		return ErrInstallationNotFound
	}
	record := s.byID[id]
	record.Status = InstallationStatus(status)
	record.Metadata = copyAnyMap(record.Metadata)
	if strings.TrimSpace(reason) != "" {
		record.Metadata["status_reason"] = strings.TrimSpace(reason)
	}
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryInstallationStore) SaveCredential(_ context.Context, installationID string, encryptedToken []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byKey[strings.TrimSpace(installationID)] == "" {
		return ErrInstallationNotFound
	}
	s.credentials[strings.TrimSpace(installationID)] = append([]byte(nil), encryptedToken...)
	return nil
}

func (s *memoryInstallationStore) Credential(_ context.Context, installationID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byKey[strings.TrimSpace(installationID)] == "" {
		return nil, ErrInstallationNotFound
	}
	return append([]byte(nil), s.credentials[strings.TrimSpace(installationID)]...), nil
}

func (s *memoryInstallationStore) SaveConfiguration(_ context.Context, installationID string, configuration map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.byKey[strings.TrimSpace(installationID)]
	if id == "" {
		return ErrInstallationNotFound
	}
	record := s.byID[id]
	record.Configuration = copyAnyMap(configuration)
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryInstallationStore) Delete(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(installationID)
	id := s.byKey[key]
	if id == "" {
		return ErrInstallationNotFound
	}
	delete(s.byID, id)
	delete(s.byKey, key)
	delete(s.credentials, key)
	return nil
}

type memoryDeliveryStore struct {
	mu    sync.Mutex
	next  int
	byID  map[string]DeliveryRecord
	byKey map[string]string
}

func newMemoryDeliveryStore() *memoryDeliveryStore {
	return &memoryDeliveryStore{
		byID:  map[string]DeliveryRecord{},
		byKey: map[string]string{},
	}
}

func deliveryKey(installationID string, deliveryID string) string {
	return installationID + ":" + deliveryID
}

func (s *memoryDeliveryStore) Reserve(_ context.Context, in ReserveDeliveryInput) (DeliveryRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deliveryKey(in.InstallationID, in.DeliveryID)
	if id := s.byKey[key]; id != "" {
		record := s.byID[id]
		if !record.Processed && record.Error != "" {
			record.Error = ""
			record.UpdatedAt = time.Now().UTC()
			s.byID[id] = record
			return record, true, nil
		}
		return record, false, nil
	}
	s.next++
	id := fmt.Sprintf("dlv_%d", s.next)
	now := time.Now().UTC()
	record := DeliveryRecord{
		ID:             id,
		InstallationID: in.InstallationID,
		DeliveryID:     in.DeliveryID,
		EventType:      in.EventType,
		Payload:        copyAnyMap(in.Payload),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[id] = record
	s.byKey[key] = id
	return record, true, nil
}

func (s *memoryDeliveryStore) Get(_ context.Context, id string) (DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("missing delivery")
	}
	return record, nil
}

func (s *memoryDeliveryStore) MarkProcessed(_ context.Context, id string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("missing delivery")
	}
	record.Processed = true
	record.ProcessedAt = &processedAt
	record.Error = ""
	record.UpdatedAt = time.Now().UTC()
	s.byID[id] = record
	return nil
}

func (s *memoryDeliveryStore) MarkFailed(_ context.Context, id string, cause string, failedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("missing delivery")
	}
	record.Processed = false
	record.Error = cause
	record.UpdatedAt = failedAt
	s.byID[id] = record
	return nil
}

func (s *memoryDeliveryStore) ListByInstallation(_ context.Context, installationID string, limit int) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []DeliveryRecord{}
	for _, record := range s.byID {
		if record.InstallationID != installationID {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryDeliveryStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.byID {
		if record.InstallationID != installationID {
			continue
		}
		delete(s.byID, id)
		delete(s.byKey, deliveryKey(record.InstallationID, record.DeliveryID))
	}
	return nil
}

type memoryActivityStore struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func newMemoryActivityStore() *memoryActivityStore {
	return &memoryActivityStore{}
}

func (s *memoryActivityStore) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Metadata = copyAnyMap(entry.Metadata)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryActivityStore) List(_ context.Context, filter ActivityFilter) (ActivityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := []ActivityEntry{}
	for _, entry := range s.entries {
		if filter.InstallationID != "" && entry.InstallationID != filter.InstallationID {
			continue
		}
		if filter.ActivityType != "" && entry.ActivityType != filter.ActivityType {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		matched = append(matched, entry)
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	start := (page - 1) * perPage
	items := []ActivityEntry{}
	if start < len(matched) {
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		items = append(items, matched[start:end]...)
	}
	return ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   len(matched),
		HasNext: page*perPage < len(matched),
	}, nil
}

func (s *memoryActivityStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, entry := range s.entries {
		if entry.InstallationID == installationID {
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return nil
}

func (s *memoryActivityStore) byType(activityType string) []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ActivityEntry{}
	for _, entry := range s.entries {
		if entry.ActivityType == activityType {
			out = append(out, entry)
		}
	}
	return out
}

type memoryProductStore struct {
	mu    sync.Mutex
	next  int
	byKey map[string]Product
}

func newMemoryProductStore() *memoryProductStore {
	return &memoryProductStore{byKey: map[string]Product{}}
}

func (s *memoryProductStore) Upsert(_ context.Context, in UpsertProductInput) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.InstallationID + ":" + in.ResourceID
	record, ok := s.byKey[key]
	if !ok {
		s.next++
		record = Product{
			ID:             fmt.Sprintf("prod_%d", s.next),
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			CreatedAt:      time.Now().UTC(),
		}
	}
	record.Title = in.Title
	record.SKU = in.SKU
	record.Price = in.Price
	record.Status = in.Status
	record.Payload = copyAnyMap(in.Payload)
	record.UpdatedAt = time.Now().UTC()
	s.byKey[key] = record
	return record, nil
}

func (s *memoryProductStore) Get(_ context.Context, installationID string, resourceID string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byKey[installationID+":"+resourceID]
	if !ok {
		return Product{}, fmt.Errorf("missing product")
	}
	return record, nil
}

func (s *memoryProductStore) CountByInstallation(_ context.Context, installationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.byKey {
		if record.InstallationID == installationID {
			count++
		}
	}
	return count, nil
}

func (s *memoryProductStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.byKey {
		if record.InstallationID == installationID {
			delete(s.byKey, key)
		}
	}
	return nil
}

type memoryOrderStore struct {
	mu    sync.Mutex
	next  int
	byKey map[string]Order
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{byKey: map[string]Order{}}
}

func (s *memoryOrderStore) Upsert(_ context.Context, in UpsertOrderInput) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.InstallationID + ":" + in.ResourceID
	record, ok := s.byKey[key]
	if !ok {
		s.next++
		record = Order{
			ID:             fmt.Sprintf("ord_%d", s.next),
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			CreatedAt:      time.Now().UTC(),
		}
	}
	record.OrderNumber = in.OrderNumber
	record.Total = in.Total
	record.Status = in.Status
	record.PlacedAt = in.PlacedAt
	record.Payload = copyAnyMap(in.Payload)
	record.UpdatedAt = time.Now().UTC()
	s.byKey[key] = record
	return record, nil
}

func (s *memoryOrderStore) Get(_ context.Context, installationID string, resourceID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byKey[installationID+":"+resourceID]
	if !ok {
		return Order{}, fmt.Errorf("missing order")
	}
	return record, nil
}

func (s *memoryOrderStore) CountByInstallation(_ context.Context, installationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.byKey {
		if record.InstallationID == installationID {
			count++
		}
	}
	return count, nil
}

func (s *memoryOrderStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.byKey {
		if record.InstallationID == installationID {
			delete(s.byKey, key)
		}
	}
	return nil
}

type memoryCustomerStore struct {
	mu    sync.Mutex
	next  int
	byKey map[string]Customer
}

func newMemoryCustomerStore() *memoryCustomerStore {
	return &memoryCustomerStore{byKey: map[string]Customer{}}
}

func (s *memoryCustomerStore) Upsert(_ context.Context, in UpsertCustomerInput) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.InstallationID + ":" + in.ResourceID
	record, ok := s.byKey[key]
	if !ok {
		s.next++
		record = Customer{
			ID:             fmt.Sprintf("cust_%d", s.next),
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			CreatedAt:      time.Now().UTC(),
		}
	}
	record.Email = in.Email
	record.Name = in.Name
	record.Phone = in.Phone
	record.Payload = copyAnyMap(in.Payload)
	record.UpdatedAt = time.Now().UTC()
	s.byKey[key] = record
	return record, nil
}

func (s *memoryCustomerStore) Get(_ context.Context, installationID string, resourceID string) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byKey[installationID+":"+resourceID]
	if !ok {
		return Customer{}, fmt.Errorf("missing customer")
	}
	return record, nil
}

func (s *memoryCustomerStore) CountByInstallation(_ context.Context, installationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.byKey {
		if record.InstallationID == installationID {
			count++
		}
	}
	return count, nil
}

func (s *memoryCustomerStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.byKey {
		if record.InstallationID == installationID {
			delete(s.byKey, key)
		}
	}
	return nil
}

type memoryRepStore struct {
	mu    sync.Mutex
	next  int
	byKey map[string]Rep
}

func newMemoryRepStore() *memoryRepStore {
	return &memoryRepStore{byKey: map[string]Rep{}}
}

func (s *memoryRepStore) Upsert(_ context.Context, in UpsertRepInput) (Rep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.InstallationID + ":" + in.ResourceID
	record, ok := s.byKey[key]
	if !ok {
		s.next++
		record = Rep{
			ID:             fmt.Sprintf("rep_%d", s.next),
			InstallationID: in.InstallationID,
			ResourceID:     in.ResourceID,
			CreatedAt:      time.Now().UTC(),
		}
	}
	record.Email = in.Email
	record.Name = in.Name
	record.Role = in.Role
	record.Payload = copyAnyMap(in.Payload)
	record.UpdatedAt = time.Now().UTC()
	s.byKey[key] = record
	return record, nil
}

func (s *memoryRepStore) Get(_ context.Context, installationID string, resourceID string) (Rep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byKey[installationID+":"+resourceID]
	if !ok {
		return Rep{}, fmt.Errorf("missing rep")
	}
	return record, nil
}

func (s *memoryRepStore) CountByInstallation(_ context.Context, installationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.byKey {
		if record.InstallationID == installationID {
			count++
		}
	}
	return count, nil
}

func (s *memoryRepStore) DeleteByInstallation(_ context.Context, installationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.byKey {
		if record.InstallationID == installationID {
			delete(s.byKey, key)
		}
	}
	return nil
}

type stubExchanger struct {
	mu     sync.Mutex
	result ExchangeTokenResult
	err    error
	calls  []ExchangeTokenRequest
}

func (s *stubExchanger) ExchangeInstallToken(_ context.Context, req ExchangeTokenRequest) (ExchangeTokenResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return ExchangeTokenResult{}, s.err
	}
	return s.result, nil
}

func (s *stubExchanger) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubRegistrar struct {
	mu     sync.Mutex
	report RegistrationReport
	err    error
	calls  []EnsureSubscriptionsRequest
}

func (s *stubRegistrar) EnsureSubscriptions(_ context.Context, req EnsureSubscriptionsRequest) (RegistrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return RegistrationReport{}, s.err
	}
	return s.report, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testServiceDeps struct {
	installations *memoryInstallationStore
	deliveries    *memoryDeliveryStore
	activity      *memoryActivityStore
	products      *memoryProductStore
	orders        *memoryOrderStore
	customers     *memoryCustomerStore
	reps          *memoryRepStore
	exchanger     *stubExchanger
	registrar     *stubRegistrar
}

func testClock() time.Time {
	return time.Date(2026, 2, 13, 10, 30, 0, 0, time.UTC)
}

func newTestService(extra ...Option) (*Service, *testServiceDeps, error) {
	deps := &testServiceDeps{
		installations: newMemoryInstallationStore(),
		deliveries:    newMemoryDeliveryStore(),
		activity:      newMemoryActivityStore(),
		products:      newMemoryProductStore(),
		orders:        newMemoryOrderStore(),
		customers:     newMemoryCustomerStore(),
		reps:          newMemoryRepStore(),
		exchanger:     &stubExchanger{result: ExchangeTokenResult{AuthenticationToken: "dit_durable"}},
		registrar:     &stubRegistrar{report: RegistrationReport{Success: 11}},
	}

	cfg := DefaultConfig()
	cfg.BaseURL = "https://droplet.example.com"

	options := []Option{
		WithLogger(stubLogger{}),
		WithSecretProvider(testSecretProvider{}),
		WithInstallationStore(deps.installations),
		WithDeliveryStore(deps.deliveries),
		WithActivityStore(deps.activity),
		WithProductStore(deps.products),
		WithOrderStore(deps.orders),
		WithCustomerStore(deps.customers),
		WithRepStore(deps.reps),
		WithTokenExchanger(deps.exchanger),
		WithSubscriptionRegistrar(deps.registrar),
		WithTaskRunner(SyncTaskRunner{}),
		WithNowFunc(testClock),
	}
	options = append(options, extra...)

	svc, err := NewService(cfg, options...)
	if err != nil {
		return nil, nil, err
	}
	return svc, deps, nil
}
