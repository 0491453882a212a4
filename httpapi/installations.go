package httpapi

import (
	"net/http"
	"time"

	"github.com/goliatone/go-droplet/auth"
	"github.com/goliatone/go-droplet/core"
	syncpkg "github.com/goliatone/go-droplet/sync"
	"github.com/labstack/echo/v4"
)

type submitConfigurationRequest struct {
	CompanyID           string         `json:"company_id" validate:"omitempty,max=64"`
	CompanyName         string         `json:"company_name" validate:"omitempty,max=255"`
	ShopDomain          string         `json:"shop_domain" validate:"omitempty,hostname_rfc1123"`
	AuthenticationToken string         `json:"authentication_token" validate:"omitempty,max=512"`
	Configuration       map[string]any `json:"configuration"`
	Metadata            map[string]any `json:"metadata"`
}

// installationResponse is the authenticated tenant view of an installation.
// Credential material never rides in responses; the durable token lives
// encrypted at rest and the install token is gone by the time a row is read.
type installationResponse struct {
	InstallationID string         `json:"installation_id"`
	CompanyID      string         `json:"company_id,omitempty"`
	CompanyName    string         `json:"company_name,omitempty"`
	ShopDomain     string         `json:"shop_domain,omitempty"`
	Status         string         `json:"status"`
	Configuration  map[string]any `json:"configuration,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// installationStatusResponse is the unauthenticated view: enough for the
// embedded configuration form to poll bootstrap progress, nothing else.
type installationStatusResponse struct {
	InstallationID string `json:"installation_id"`
	Status         string `json:"status"`
}

type resourceCountsResponse struct {
	Products  int `json:"products"`
	Orders    int `json:"orders"`
	Customers int `json:"customers"`
	Reps      int `json:"reps"`
}

type activityEntryResponse struct {
	ActivityType string         `json:"activity_type"`
	Status       string         `json:"status"`
	Details      string         `json:"details,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type dashboardResponse struct {
	Installation   installationResponse    `json:"installation"`
	Counts         resourceCountsResponse  `json:"counts"`
	RecentActivity []activityEntryResponse `json:"recent_activity"`
}

type syncKindResponse struct {
	Kind   string `json:"kind"`
	Pages  int    `json:"pages"`
	Synced int    `json:"synced"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
}

type syncReportResponse struct {
	InstallationID string             `json:"installation_id"`
	Synced         int                `json:"synced"`
	Failed         int                `json:"failed"`
	DurationMS     int64              `json:"duration_ms"`
	Kinds          []syncKindResponse `json:"kinds"`
	Errors         []string           `json:"errors,omitempty"`
}

// handleSubmitConfiguration serves the embedded configuration form. Auth is
// optional because a fresh install posts its first configuration, and the
// platform-issued token, before the droplet holds any credential for it.
func (s *Server) handleSubmitConfiguration(c echo.Context) error {
	var req submitConfigurationRequest
	if err := c.Bind(&req); err != nil {
		return badRequestError("httpapi: configuration payload is not valid JSON")
	}
	if err := validateStruct(req); err != nil {
		return err
	}

	installation, err := s.service.SubmitConfiguration(c.Request().Context(), core.SubmitConfigurationInput{
		InstallationID:      c.Param(installationParam),
		CompanyID:           req.CompanyID,
		CompanyName:         req.CompanyName,
		ShopDomain:          req.ShopDomain,
		AuthenticationToken: req.AuthenticationToken,
		Configuration:       req.Configuration,
		Metadata:            req.Metadata,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newInstallationResponse(installation))
}

// handleStatus reports bootstrap progress. An authenticated caller gets the
// full installation view; anyone else gets the id and status only.
func (s *Server) handleStatus(c echo.Context) error {
	if installation, ok := auth.InstallationFromContext(c); ok {
		return c.JSON(http.StatusOK, newInstallationResponse(installation))
	}

	installation, err := s.service.GetInstallation(c.Request().Context(), c.Param(installationParam))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, installationStatusResponse{
		InstallationID: installation.InstallationID,
		Status:         string(installation.Status),
	})
}

func (s *Server) handleDashboard(c echo.Context) error {
	summary, err := s.service.Dashboard(c.Request().Context(), c.Param(installationParam))
	if err != nil {
		return err
	}

	response := dashboardResponse{
		Installation: newInstallationResponse(summary.Installation),
		Counts: resourceCountsResponse{
			Products:  summary.Counts.Products,
			Orders:    summary.Counts.Orders,
			Customers: summary.Counts.Customers,
			Reps:      summary.Counts.Reps,
		},
		RecentActivity: make([]activityEntryResponse, 0, len(summary.RecentActivity)),
	}
	for _, entry := range summary.RecentActivity {
		response.RecentActivity = append(response.RecentActivity, activityEntryResponse{
			ActivityType: entry.ActivityType,
			Status:       string(entry.Status),
			Details:      entry.Details,
			Metadata:     entry.Metadata,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) handleSync(c echo.Context) error {
	report, err := s.syncer.SyncInstallation(c.Request().Context(), c.Param(installationParam))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSyncReportResponse(report))
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.service.DeleteInstallation(c.Request().Context(), c.Param(installationParam)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func newInstallationResponse(installation core.Installation) installationResponse {
	return installationResponse{
		InstallationID: installation.InstallationID,
		CompanyID:      installation.CompanyID,
		CompanyName:    installation.CompanyName,
		ShopDomain:     installation.ShopDomain,
		Status:         string(installation.Status),
		Configuration:  installation.Configuration,
		CreatedAt:      installation.CreatedAt,
		UpdatedAt:      installation.UpdatedAt,
	}
}

func newSyncReportResponse(report syncpkg.Report) syncReportResponse {
	response := syncReportResponse{
		InstallationID: report.InstallationID,
		Synced:         report.Synced,
		Failed:         report.Failed,
		DurationMS:     report.Duration.Milliseconds(),
		Kinds:          make([]syncKindResponse, 0, len(report.Kinds)),
		Errors:         report.Errors,
	}
	for _, kind := range report.Kinds {
		response.Kinds = append(response.Kinds, syncKindResponse{
			Kind:   string(kind.Kind),
			Pages:  kind.Pages,
			Synced: kind.Synced,
			Failed: kind.Failed,
			Error:  kind.Error,
		})
	}
	return response
}
