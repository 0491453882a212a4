package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-droplet/core"
	syncpkg "github.com/goliatone/go-droplet/sync"
)

func TestServer_SubmitConfigurationServesFreshInstalls(t *testing.T) {
	service := newFakeService()
	server := newTestServer(t, service)

	body := `{
		"company_id": "84",
		"company_name": "Acme Co",
		"shop_domain": "acme.example.com",
		"authentication_token": "dit_abc",
		"configuration": {"theme": "dark"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/installations/inst-1/configuration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(service.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(service.submitted))
	}
	in := service.submitted[0]
	if in.InstallationID != "inst-1" {
		t.Fatalf("expected the path id to drive the submission, got %q", in.InstallationID)
	}
	if in.ShopDomain != "acme.example.com" || in.AuthenticationToken != "dit_abc" {
		t.Fatalf("submission dropped fields: %+v", in)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["installation_id"] != "inst-1" {
		t.Fatalf("expected installation_id inst-1, got %v", resp["installation_id"])
	}
	if resp["status"] != string(core.InstallationStatusActive) {
		t.Fatalf("expected active status after credentialed submit, got %v", resp["status"])
	}
	if _, ok := resp["authentication_token"]; ok {
		t.Fatalf("response must not carry credential material")
	}
}

func TestServer_SubmitConfigurationRejectsInvalidShopDomain(t *testing.T) {
	service := newFakeService()
	server := newTestServer(t, service)

	body := `{"shop_domain": "not a hostname!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/installations/inst-1/configuration", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body %s)", rec.Code, rec.Body.String())
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected text code %s, got %s", core.ServiceErrorBadInput, envelope.TextCode)
	}
	if len(service.submitted) != 0 {
		t.Fatalf("invalid payload must not reach the service")
	}
}

func TestServer_SubmitConfigurationRejectsMalformedJSON(t *testing.T) {
	server := newTestServer(t, newFakeService())

	req := httptest.NewRequest(http.MethodPost, "/api/installations/inst-1/configuration", strings.NewReader(`{"company_id":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected text code %s, got %s", core.ServiceErrorBadInput, envelope.TextCode)
	}
}

func TestServer_StatusWithoutCredentialIsReduced(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		CompanyName:    "Acme Co",
		ShopDomain:     "acme.example.com",
		Status:         core.InstallationStatusPending,
	}, "tok_a")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["installation_id"] != "inst-1" || resp["status"] != string(core.InstallationStatusPending) {
		t.Fatalf("unexpected reduced view: %v", resp)
	}
	if _, ok := resp["company_name"]; ok {
		t.Fatalf("unauthenticated status must not expose company details")
	}
	if _, ok := resp["shop_domain"]; ok {
		t.Fatalf("unauthenticated status must not expose the shop domain")
	}
}

func TestServer_StatusWithCredentialIsFull(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		CompanyName:    "Acme Co",
		ShopDomain:     "acme.example.com",
		Status:         core.InstallationStatusActive,
	}, "tok_a")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/status", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["company_name"] != "Acme Co" {
		t.Fatalf("expected full view for authenticated caller, got %v", resp)
	}
}

func TestServer_DashboardRequiresCredential(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		Status:         core.InstallationStatusActive,
	}, "tok_a")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/dashboard", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.TextCode != core.ServiceErrorCredentialRequired {
		t.Fatalf("expected text code %s, got %s", core.ServiceErrorCredentialRequired, envelope.TextCode)
	}
}

func TestServer_DashboardRejectsForeignCredential(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-a",
		Status:         core.InstallationStatusActive,
	}, "tok_a")
	service.addInstallation(core.Installation{
		InstallationID: "inst-b",
		Status:         core.InstallationStatusActive,
	}, "tok_b")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-b/dashboard", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a foreign credential, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if envelope.TextCode != core.ServiceErrorCredentialMismatch {
		t.Fatalf("expected text code %s, got %s", core.ServiceErrorCredentialMismatch, envelope.TextCode)
	}
}

func TestServer_DashboardRendersSummary(t *testing.T) {
	service := newFakeService()
	installation := core.Installation{
		InstallationID: "inst-1",
		CompanyName:    "Acme Co",
		Status:         core.InstallationStatusActive,
	}
	service.addInstallation(installation, "tok_a")
	service.dashboardSet = true
	service.dashboard = core.DashboardSummary{
		Installation: installation,
		Counts: core.ResourceCounts{
			Products:  12,
			Orders:    4,
			Customers: 9,
			Reps:      2,
		},
		RecentActivity: []core.ActivityEntry{
			{
				InstallationID: "inst-1",
				ActivityType:   "webhooks_registered",
				Status:         core.ActivityStatusSuccess,
				CreatedAt:      time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
			},
		},
	}
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	var resp dashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Installation.InstallationID != "inst-1" {
		t.Fatalf("expected installation in summary, got %+v", resp.Installation)
	}
	if resp.Counts.Products != 12 || resp.Counts.Reps != 2 {
		t.Fatalf("unexpected counts: %+v", resp.Counts)
	}
	if len(resp.RecentActivity) != 1 || resp.RecentActivity[0].ActivityType != "webhooks_registered" {
		t.Fatalf("unexpected activity: %+v", resp.RecentActivity)
	}
}

func TestServer_SyncRunsCompanyDataPull(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		Status:         core.InstallationStatusActive,
	}, "tok_a")
	syncer := &fakeSyncer{
		report: syncpkg.Report{
			Synced: 7,
			Kinds: []syncpkg.KindReport{
				{Kind: core.ResourceKindProduct, Pages: 1, Synced: 7},
			},
		},
	}
	server := newTestServer(t, service, withSyncer(syncer))

	req := httptest.NewRequest(http.MethodPost, "/api/installations/inst-1/sync", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != "inst-1" {
		t.Fatalf("expected one sync for inst-1, got %v", syncer.calls)
	}
	var resp syncReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.InstallationID != "inst-1" || resp.Synced != 7 {
		t.Fatalf("unexpected report: %+v", resp)
	}
	if len(resp.Kinds) != 1 || resp.Kinds[0].Kind != string(core.ResourceKindProduct) {
		t.Fatalf("unexpected kind breakdown: %+v", resp.Kinds)
	}
}

func TestServer_DisconnectDeletesInstallation(t *testing.T) {
	service := newFakeService()
	service.addInstallation(core.Installation{
		InstallationID: "inst-1",
		Status:         core.InstallationStatusActive,
	}, "tok_a")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodDelete, "/api/installations/inst-1", nil)
	req.Header.Set("Authorization", "Bearer tok_a")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(service.deleted) != 1 || service.deleted[0] != "inst-1" {
		t.Fatalf("expected deletion of inst-1, got %v", service.deleted)
	}
}

func TestServer_UnclassifiedErrorsStayGeneric(t *testing.T) {
	service := newFakeService()
	service.getErr = fmt.Errorf("pq: connection reset")
	server := newTestServer(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/installations/inst-1/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	envelope := decodeErrorEnvelope(t, rec.Body.Bytes())
	if strings.Contains(envelope.Message, "pq:") {
		t.Fatalf("internal detail leaked into the envelope: %q", envelope.Message)
	}
	if envelope.TextCode != core.ServiceErrorInternal {
		t.Fatalf("expected text code %s, got %s", core.ServiceErrorInternal, envelope.TextCode)
	}
}
