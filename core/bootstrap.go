package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrExchangeNotAttemptable marks an exchange the client could not even
// start, usually because no endpoint URL was derivable. It is the only
// condition under which the pipeline falls back to the short-lived token.
var ErrExchangeNotAttemptable = errors.New("core: token exchange not attemptable")

type BootstrapRequest struct {
	InstallationID string
	CompanyID      string
	CompanyName    string
	ShopDomain     string
	InstallToken   string
	Metadata       map[string]any
}

// BootstrapTask adapts a bootstrap request to the task runner.
type BootstrapTask struct {
	Service *Service
	Request BootstrapRequest
}

func NewBootstrapTask(service *Service, req BootstrapRequest) *BootstrapTask {
	return &BootstrapTask{Service: service, Request: req}
}

func (t *BootstrapTask) Name() string {
	return "droplet.bootstrap"
}

func (t *BootstrapTask) Execute(ctx context.Context) error {
	if t == nil || t.Service == nil {
		return fmt.Errorf("core: bootstrap task requires a service")
	}
	return t.Service.RunBootstrap(ctx, t.Request)
}

// StartInstallation is the installed-event entry point: upsert the row to
// pending and hand the completion pipeline to the task runner. The caller
// acknowledges the webhook as soon as this returns; the exchange and
// registration happen behind it.
func (s *Service) StartInstallation(ctx context.Context, req BootstrapRequest) (installation Installation, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": req.InstallationID,
		"company_id":      req.CompanyID,
		"shop_domain":     req.ShopDomain,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "start_installation", err, fields)
	}()

	if s == nil {
		return Installation{}, fmt.Errorf("core: service is required")
	}
	req.InstallationID = strings.TrimSpace(req.InstallationID)
	if req.InstallationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return Installation{}, err
	}

	installation, err = s.UpsertInstallation(ctx, UpsertInstallationRequest{
		InstallationID: req.InstallationID,
		CompanyID:      req.CompanyID,
		CompanyName:    req.CompanyName,
		ShopDomain:     req.ShopDomain,
		Status:         InstallationStatusPending,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return Installation{}, err
	}

	runner := s.taskRunner
	if runner == nil {
		runner = GoroutineTaskRunner{Logger: s.logger}
	}
	if err = runner.Run(ctx, NewBootstrapTask(s, req)); err != nil {
		err = s.mapError(err)
		return Installation{}, err
	}
	return installation, nil
}

// RunBootstrap completes an installation: exchange the install token for the
// durable credential, register the webhook catalog, then activate. Every
// failure terminates here in a log line and an activity entry; the
// installation keeps its last consistent state and platform redelivery is
// the retry mechanism.
func (s *Service) RunBootstrap(ctx context.Context, req BootstrapRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"installation_id": req.InstallationID,
		"company_id":      req.CompanyID,
		"company_name":    req.CompanyName,
		"shop_domain":     req.ShopDomain,
		"token_prefix":    tokenPrefix(req.InstallToken),
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("core: bootstrap panic: %v", rec)
		}
		s.observeOperation(ctx, startedAt, "bootstrap", err, fields)
	}()

	if s == nil {
		return fmt.Errorf("core: service is required")
	}
	req.InstallationID = strings.TrimSpace(req.InstallationID)
	req.ShopDomain = normalizeShopDomain(req.ShopDomain)
	if req.InstallationID == "" {
		err = s.mapError(fmt.Errorf("core: installation id is required"))
		return err
	}

	s.recordActivity(ctx, req.InstallationID, ActivityBootstrapStarted, ActivityStatusSuccess, "bootstrap started", map[string]any{
		"company_id":   req.CompanyID,
		"company_name": req.CompanyName,
		"shop_domain":  req.ShopDomain,
	})

	durable, source, exchangeErr := s.resolveDurableToken(ctx, req)
	if exchangeErr != nil {
		s.recordActivity(ctx, req.InstallationID, ActivityBootstrapFailed, ActivityStatusError, "token exchange failed", map[string]any{
			"cause": exchangeErr.Error(),
		})
		if isPermanentExchangeError(exchangeErr) {
			if _, failErr := s.FailInstallation(ctx, req.InstallationID, exchangeErr.Error()); failErr != nil {
				s.logError(ctx, "fail transition after exchange error", map[string]any{
					"installation_id": req.InstallationID,
					"error":           failErr.Error(),
				})
			}
		}
		err = s.mapError(exchangeErr)
		return err
	}
	s.recordActivity(ctx, req.InstallationID, ActivityTokenExchanged, activityStatusForSource(source), "durable credential resolved", map[string]any{
		"source": source,
	})

	report := s.registerCatalog(ctx, req, durable)

	if _, activateErr := s.ActivateInstallation(ctx, req.InstallationID, durable, map[string]any{
		"source": source,
	}); activateErr != nil {
		s.recordActivity(ctx, req.InstallationID, ActivityBootstrapFailed, ActivityStatusError, "activation failed", map[string]any{
			"cause": activateErr.Error(),
		})
		err = activateErr
		return err
	}

	s.recordActivity(ctx, req.InstallationID, ActivityBootstrapCompleted, ActivityStatusSuccess, "bootstrap completed", map[string]any{
		"registered": report.Success,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	})
	return nil
}

// resolveDurableToken runs the exchange once. The short-lived install token
// is used only when the exchange was never attemptable; an upstream error
// status is a hard failure.
func (s *Service) resolveDurableToken(ctx context.Context, req BootstrapRequest) (string, string, error) {
	installToken := strings.TrimSpace(req.InstallToken)

	if s.tokenExchanger == nil {
		if installToken == "" {
			return "", "", fmt.Errorf("%w: no exchanger configured and no install token", ErrExchangeNotAttemptable)
		}
		return installToken, "install_token", nil
	}

	exchangeCtx := ctx
	if timeout := s.config.Bootstrap.ExchangeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		exchangeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.tokenExchanger.ExchangeInstallToken(exchangeCtx, ExchangeTokenRequest{
		InstallationID: req.InstallationID,
		ShopDomain:     req.ShopDomain,
		InstallToken:   installToken,
		Metadata:       copyAnyMap(req.Metadata),
	})
	if err != nil {
		if errors.Is(err, ErrExchangeNotAttemptable) && installToken != "" {
			return installToken, "install_token", nil
		}
		return "", "", err
	}
	token := strings.TrimSpace(result.AuthenticationToken)
	if token == "" {
		return "", "", fmt.Errorf("core: token exchange returned an empty credential")
	}
	return token, "exchange", nil
}

// registerCatalog never fails the pipeline; a partial or even total
// registration failure is logged and the installation still activates.
func (s *Service) registerCatalog(ctx context.Context, req BootstrapRequest, durable string) RegistrationReport {
	callbackURL := s.config.CallbackURL()
	if s.registrar == nil || callbackURL == "" {
		s.recordActivity(ctx, req.InstallationID, ActivityWebhooksRegistered, ActivityStatusWarning, "registration skipped", map[string]any{
			"callback_url": callbackURL,
		})
		return RegistrationReport{}
	}

	registerCtx := ctx
	if timeout := s.config.Bootstrap.RegistrationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		registerCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := s.registrar.EnsureSubscriptions(registerCtx, EnsureSubscriptionsRequest{
		InstallationID:      req.InstallationID,
		ShopDomain:          req.ShopDomain,
		AuthenticationToken: durable,
		CallbackURL:         callbackURL,
		Metadata:            copyAnyMap(req.Metadata),
	})
	if err != nil {
		s.recordActivity(ctx, req.InstallationID, ActivityWebhooksRegistered, ActivityStatusError, "registration failed", map[string]any{
			"cause": err.Error(),
		})
		return RegistrationReport{Errors: []string{err.Error()}}
	}

	status := ActivityStatusSuccess
	if report.Failed > 0 {
		status = ActivityStatusWarning
	}
	s.recordActivity(ctx, req.InstallationID, ActivityWebhooksRegistered, status, "webhook catalog reconciled", map[string]any{
		"registered": report.Success,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"errors":     append([]string(nil), report.Errors...),
	})
	return report
}

func activityStatusForSource(source string) ActivityStatus {
	if source == "install_token" {
		return ActivityStatusWarning
	}
	return ActivityStatusSuccess
}

// isPermanentExchangeError separates upstream rejections that redelivery can
// never cure (auth, unknown installation) from transient upstream trouble.
func isPermanentExchangeError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound, goerrors.CategoryBadInput:
		return true
	}
	return richErr.Code >= 400 && richErr.Code < 500 && richErr.Code != 429
}

func tokenPrefix(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return token[:1] + "..."
	}
	return token[:8] + "..."
}

// SyncTaskRunner executes tasks inline on the caller's goroutine.
type SyncTaskRunner struct{}

func (SyncTaskRunner) Run(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("core: task is required")
	}
	return task.Execute(ctx)
}

// GoroutineTaskRunner detaches tasks from the calling request. Run returns
// before the task starts so the webhook acknowledgement never waits on the
// pipeline; cancellation of the inbound request does not reach the task.
type GoroutineTaskRunner struct {
	Logger Logger
}

func (r GoroutineTaskRunner) Run(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("core: task is required")
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if rec := recover(); rec != nil && r.Logger != nil {
				r.Logger.Error("task panic", "task", task.Name(), "panic", fmt.Sprint(rec))
			}
		}()
		if err := task.Execute(detached); err != nil && r.Logger != nil {
			r.Logger.Error("task failed", "task", task.Name(), "error", err)
		}
	}()
	return nil
}

var (
	_ Task       = (*BootstrapTask)(nil)
	_ TaskRunner = SyncTaskRunner{}
	_ TaskRunner = GoroutineTaskRunner{}
)
