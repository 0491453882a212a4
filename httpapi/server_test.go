package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-droplet/auth"
	"github.com/goliatone/go-droplet/core"
	syncpkg "github.com/goliatone/go-droplet/sync"
	goerrors "github.com/goliatone/go-errors"
)

type fakeService struct {
	installations map[string]core.Installation
	credentials   map[string]string
	submitted     []core.SubmitConfigurationInput
	deleted       []string
	dashboard     core.DashboardSummary
	dashboardSet  bool
	getErr        error
}

func newFakeService() *fakeService {
	return &fakeService{
		installations: map[string]core.Installation{},
		credentials:   map[string]string{},
	}
}

func (f *fakeService) addInstallation(installation core.Installation, credential string) {
	f.installations[installation.InstallationID] = installation
	if credential != "" {
		f.credentials[installation.InstallationID] = credential
	}
}

func (f *fakeService) SubmitConfiguration(_ context.Context, in core.SubmitConfigurationInput) (core.Installation, error) {
	f.submitted = append(f.submitted, in)
	installation, ok := f.installations[in.InstallationID]
	if !ok {
		installation = core.Installation{
			InstallationID: in.InstallationID,
			Status:         core.InstallationStatusPending,
			CreatedAt:      time.Now().UTC(),
		}
	}
	if in.CompanyName != "" {
		installation.CompanyName = in.CompanyName
	}
	if in.ShopDomain != "" {
		installation.ShopDomain = in.ShopDomain
	}
	if len(in.Configuration) > 0 {
		installation.Configuration = in.Configuration
	}
	if in.AuthenticationToken != "" && installation.Status == core.InstallationStatusPending {
		installation.Status = core.InstallationStatusActive
	}
	installation.UpdatedAt = time.Now().UTC()
	f.installations[in.InstallationID] = installation
	return installation, nil
}

func (f *fakeService) GetInstallation(_ context.Context, installationID string) (core.Installation, error) {
	if f.getErr != nil {
		return core.Installation{}, f.getErr
	}
	installation, ok := f.installations[installationID]
	if !ok {
		return core.Installation{}, installationNotFoundError()
	}
	return installation, nil
}

func (f *fakeService) GetInstallationByToken(_ context.Context, installationID string, token string) (core.Installation, error) {
	installation, ok := f.installations[installationID]
	if !ok {
		return core.Installation{}, installationNotFoundError()
	}
	if f.credentials[installationID] == "" || f.credentials[installationID] != token {
		return core.Installation{}, credentialMismatchError()
	}
	return installation, nil
}

func (f *fakeService) Dashboard(_ context.Context, installationID string) (core.DashboardSummary, error) {
	installation, ok := f.installations[installationID]
	if !ok {
		return core.DashboardSummary{}, installationNotFoundError()
	}
	if f.dashboardSet {
		return f.dashboard, nil
	}
	return core.DashboardSummary{Installation: installation}, nil
}

func (f *fakeService) DeleteInstallation(_ context.Context, installationID string) error {
	if _, ok := f.installations[installationID]; !ok {
		return installationNotFoundError()
	}
	delete(f.installations, installationID)
	f.deleted = append(f.deleted, installationID)
	return nil
}

type fakeSyncer struct {
	calls  []string
	report syncpkg.Report
	err    error
}

func (f *fakeSyncer) SyncInstallation(_ context.Context, installationID string) (syncpkg.Report, error) {
	f.calls = append(f.calls, installationID)
	if f.err != nil {
		return syncpkg.Report{}, f.err
	}
	report := f.report
	report.InstallationID = installationID
	return report, nil
}

func installationNotFoundError() error {
	return goerrors.New("core: installation not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ServiceErrorInstallationNotFound)
}

func credentialMismatchError() error {
	return goerrors.New("core: credential mismatch for installation", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(core.ServiceErrorCredentialMismatch)
}

type testServerOption func(*ServerConfig)

func withDispatcher(dispatcher WebhookDispatcher) testServerOption {
	return func(cfg *ServerConfig) {
		cfg.Webhooks = dispatcher
	}
}

func withSyncer(syncer Syncer) testServerOption {
	return func(cfg *ServerConfig) {
		cfg.Syncer = syncer
	}
}

func withHealth(health func(context.Context) error) testServerOption {
	return func(cfg *ServerConfig) {
		cfg.Health = health
	}
}

func newTestServer(t *testing.T, service *fakeService, opts ...testServerOption) *Server {
	t.Helper()
	cfg := ServerConfig{
		Service:  service,
		Webhooks: &fakeWebhookDispatcher{},
		Guard:    auth.NewGuard(service, nil),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func decodeErrorEnvelope(t *testing.T, body []byte) errorPayload {
	t.Helper()
	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, string(body))
	}
	return envelope.Error
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	service := newFakeService()
	guard := auth.NewGuard(service, nil)

	if _, err := NewServer(ServerConfig{Webhooks: &fakeWebhookDispatcher{}, Guard: guard}); err == nil {
		t.Fatalf("expected missing service error")
	}
	if _, err := NewServer(ServerConfig{Service: service, Guard: guard}); err == nil {
		t.Fatalf("expected missing dispatcher error")
	}
	if _, err := NewServer(ServerConfig{Service: service, Webhooks: &fakeWebhookDispatcher{}}); err == nil {
		t.Fatalf("expected missing guard error")
	}
}

func TestServer_HealthzReportsProbeOutcome(t *testing.T) {
	server := newTestServer(t, newFakeService(), withHealth(func(context.Context) error {
		return nil
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when probe passes, got %d", rec.Code)
	}

	server = newTestServer(t, newFakeService(), withHealth(func(context.Context) error {
		return fmt.Errorf("db offline")
	}))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when probe fails, got %d", rec.Code)
	}
}

func TestServer_UnknownRouteRendersEnvelope(t *testing.T) {
	server := newTestServer(t, newFakeService())
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.Status != http.StatusNotFound {
		t.Fatalf("expected envelope status 404, got %d", envelope.Status)
	}
	if envelope.Message == "" {
		t.Fatalf("expected a message in the envelope")
	}
}

func TestServer_SyncRouteAbsentWithoutSyncer(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		Status:         core.InstallationStatusActive,
	}, "tok_a")

	server := newTestServer(t, service)
	req := httptest.NewRequest(http.MethodPost, "/api/installations/inst-1/sync", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected sync route to be absent, got %d", rec.Code)
	}
}
