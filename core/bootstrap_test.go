package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestService_StartInstallation_RunsPipeline(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	installation, err := svc.StartInstallation(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		CompanyID:      "co-9",
		CompanyName:    "Acme Surf",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "dit_short",
	})
	if err != nil {
		t.Fatalf("start installation: %v", err)
	}
	if installation.InstallationID != "inst-100" {
		t.Fatalf("unexpected installation %q", installation.InstallationID)
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusActive {
		t.Fatalf("expected active after the pipeline, got %q", stored.Status)
	}

	if deps.exchanger.callCount() != 1 {
		t.Fatalf("expected one exchange call, got %d", deps.exchanger.callCount())
	}
	if got := deps.exchanger.calls[0].InstallToken; got != "dit_short" {
		t.Fatalf("expected the install token to be exchanged, got %q", got)
	}

	if len(deps.registrar.calls) != 1 {
		t.Fatalf("expected one registration call, got %d", len(deps.registrar.calls))
	}
	call := deps.registrar.calls[0]
	if call.AuthenticationToken != "dit_durable" {
		t.Fatalf("registration must use the durable credential, got %q", call.AuthenticationToken)
	}
	if call.CallbackURL != "https://droplet.example.com/webhook" {
		t.Fatalf("unexpected callback url %q", call.CallbackURL)
	}

	credential, err := svc.InstallationCredential(ctx, "inst-100")
	if err != nil {
		t.Fatalf("installation credential: %v", err)
	}
	if credential != "dit_durable" {
		t.Fatalf("expected the exchanged credential to be stored, got %q", credential)
	}

	for _, activityType := range []string{
		ActivityBootstrapStarted,
		ActivityTokenExchanged,
		ActivityWebhooksRegistered,
		ActivityBootstrapCompleted,
	} {
		if entries := deps.activity.byType(activityType); len(entries) != 1 {
			t.Fatalf("expected one %s entry, got %d", activityType, len(entries))
		}
	}
}

type gatedExchanger struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedExchanger) ExchangeInstallToken(context.Context, ExchangeTokenRequest) (ExchangeTokenResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return ExchangeTokenResult{AuthenticationToken: "dit_gated"}, nil
}

func TestService_StartInstallation_AcksBeforeExchangeCompletes(t *testing.T) {
	ctx := context.Background()
	gate := &gatedExchanger{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc, _, err := newTestService(
		WithTokenExchanger(gate),
		WithTaskRunner(GoroutineTaskRunner{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	accepted, err := svc.StartInstallation(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "fit_short",
	})
	if err != nil {
		t.Fatalf("start installation: %v", err)
	}
	if accepted.Status != InstallationStatusPending {
		t.Fatalf("expected the pending snapshot back before the pipeline runs, got %q", accepted.Status)
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusPending {
		t.Fatalf("expected pending while the exchange is held open, got %q", stored.Status)
	}

	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("exchange never started")
	}
	close(gate.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := svc.GetInstallation(ctx, "inst-100")
		if err != nil {
			t.Fatalf("get installation: %v", err)
		}
		if stored.Status == InstallationStatusActive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("installation never activated after the exchange was released, status %q", stored.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_ConcurrentBootstrapAndConfigurationConverge(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.StartInstallation(ctx, BootstrapRequest{
			InstallationID: "inst-race",
			CompanyID:      "co-9",
			ShopDomain:     "acme.fluid.app",
			InstallToken:   "fit_short",
		})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := svc.SubmitConfiguration(ctx, SubmitConfigurationInput{
			InstallationID:      "inst-race",
			ShopDomain:          "acme.fluid.app",
			AuthenticationToken: "dit_from_tenant",
			Configuration:       map[string]any{"plan": "starter"},
		})
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("racing path failed: %v", err)
		}
	}

	stored, err := svc.GetInstallation(ctx, "inst-race")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusActive {
		t.Fatalf("expected the race to converge on active, got %q", stored.Status)
	}
	if deps.installations.next != 1 {
		t.Fatalf("expected exactly one row, got %d", deps.installations.next)
	}
	credential, err := svc.InstallationCredential(ctx, "inst-race")
	if err != nil {
		t.Fatalf("installation credential: %v", err)
	}
	if credential != "dit_durable" && credential != "dit_from_tenant" {
		t.Fatalf("expected one of the racing credentials to win, got %q", credential)
	}
}

func TestService_RunBootstrap_TransientExchangeFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps.exchanger.err = fmt.Errorf("platform timeout")

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	err = svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "dit_short",
	})
	if err == nil {
		t.Fatalf("expected the bootstrap to surface the exchange failure")
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusPending {
		t.Fatalf("expected pending after a transient failure, got %q", stored.Status)
	}
	if len(deps.registrar.calls) != 0 {
		t.Fatalf("registration must not run when the exchange fails")
	}
	if entries := deps.activity.byType(ActivityBootstrapFailed); len(entries) != 1 {
		t.Fatalf("expected one bootstrap failure entry, got %d", len(entries))
	}
}

func TestService_RunBootstrap_PermanentExchangeFailureFailsRow(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps.exchanger.err = goerrors.New("exchange rejected", goerrors.CategoryAuth)

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "dit_short",
	}); err == nil {
		t.Fatalf("expected the bootstrap to surface the rejection")
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusFailed {
		t.Fatalf("expected failed after a permanent rejection, got %q", stored.Status)
	}
}

func TestService_RunBootstrap_FallsBackWhenExchangeNotAttemptable(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps.exchanger.err = fmt.Errorf("%w: no endpoint for shop", ErrExchangeNotAttemptable)

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		InstallToken:   "dit_short",
	}); err != nil {
		t.Fatalf("bootstrap with fallback: %v", err)
	}

	credential, err := svc.InstallationCredential(ctx, "inst-100")
	if err != nil {
		t.Fatalf("installation credential: %v", err)
	}
	if credential != "dit_short" {
		t.Fatalf("expected the short-lived token as fallback, got %q", credential)
	}

	entries := deps.activity.byType(ActivityTokenExchanged)
	if len(entries) != 1 || entries[0].Status != ActivityStatusWarning {
		t.Fatalf("expected a warning token entry for the fallback, got %+v", entries)
	}
}

func TestService_RunBootstrap_NoExchangerUsesInstallToken(t *testing.T) {
	ctx := context.Background()
	svc, _, err := newTestService(WithTokenExchanger(nil))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		InstallToken:   "dit_short",
	}); err != nil {
		t.Fatalf("bootstrap without exchanger: %v", err)
	}

	credential, err := svc.InstallationCredential(ctx, "inst-100")
	if err != nil {
		t.Fatalf("installation credential: %v", err)
	}
	if credential != "dit_short" {
		t.Fatalf("expected the install token to be stored, got %q", credential)
	}
}

func TestService_RunBootstrap_RegistrationFailureStillActivates(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps.registrar.err = fmt.Errorf("subscription list unavailable")

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	if err := svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "dit_short",
	}); err != nil {
		t.Fatalf("bootstrap must not fail on registration trouble: %v", err)
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusActive {
		t.Fatalf("expected active despite registration failure, got %q", stored.Status)
	}

	entries := deps.activity.byType(ActivityWebhooksRegistered)
	if len(entries) != 1 || entries[0].Status != ActivityStatusError {
		t.Fatalf("expected an error registration entry, got %+v", entries)
	}
}

type panicExchanger struct{}

func (panicExchanger) ExchangeInstallToken(context.Context, ExchangeTokenRequest) (ExchangeTokenResult, error) {
	panic("exchange went sideways")
}

func TestService_RunBootstrap_RecoversPanic(t *testing.T) {
	ctx := context.Background()
	svc, _, err := newTestService(WithTokenExchanger(panicExchanger{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	err = svc.RunBootstrap(ctx, BootstrapRequest{
		InstallationID: "inst-100",
		ShopDomain:     "acme.fluid.app",
		InstallToken:   "dit_short",
	})
	if err == nil {
		t.Fatalf("expected the recovered panic to surface as an error")
	}

	stored, err := svc.GetInstallation(ctx, "inst-100")
	if err != nil {
		t.Fatalf("get installation: %v", err)
	}
	if stored.Status != InstallationStatusPending {
		t.Fatalf("expected pending after a recovered panic, got %q", stored.Status)
	}
}

type signalTask struct {
	wg    *sync.WaitGroup
	err   error
	panic bool
}

func (t *signalTask) Name() string { return "signal" }

func (t *signalTask) Execute(context.Context) error {
	defer t.wg.Done()
	if t.panic {
		panic("task blew up")
	}
	return t.err
}

func TestGoroutineTaskRunner_DetachesAndRecovers(t *testing.T) {
	runner := GoroutineTaskRunner{Logger: stubLogger{}}

	var wg sync.WaitGroup
	wg.Add(2)
	if err := runner.Run(context.Background(), &signalTask{wg: &wg, err: fmt.Errorf("boom")}); err != nil {
		t.Fatalf("run errored task: %v", err)
	}
	if err := runner.Run(context.Background(), &signalTask{wg: &wg, panic: true}); err != nil {
		t.Fatalf("run panicking task: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tasks did not run")
	}
}

func TestSyncTaskRunner_RunsInline(t *testing.T) {
	var ran bool
	task := &inlineTask{run: func() error {
		ran = true
		return nil
	}}
	if err := (SyncTaskRunner{}).Run(context.Background(), task); err != nil {
		t.Fatalf("run inline task: %v", err)
	}
	if !ran {
		t.Fatalf("expected the task to run inline")
	}
}

type inlineTask struct {
	run func() error
}

func (t *inlineTask) Name() string { return "inline" }

func (t *inlineTask) Execute(context.Context) error { return t.run() }
