package security

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-droplet/core"
)

type RotationOption func(*RotationSecretProvider)

type RotationDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	Outcome    string
	Provider   string
	Error      string
}

type RotationDiagnosticHook func(event RotationDiagnostic)

// RotationSecretProvider lets operators rotate the application key without
// re-encrypting every stored credential. Writes always seal with the active
// key; reads fall back to retired keys for rows sealed before the rotation.
type RotationSecretProvider struct {
	active         core.SecretProvider
	retired        []retiredKey
	diagnosticHook RotationDiagnosticHook
	now            func() time.Time
}

// KeyRotationWindow bounds when a retired key may still decrypt. Either edge
// may be zero, leaving that side open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type retiredKey struct {
	provider core.SecretProvider
	window   KeyRotationWindow
}

func NewRotationSecretProvider(active core.SecretProvider, opts ...RotationOption) (*RotationSecretProvider, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active secret provider is required")
	}
	provider := &RotationSecretProvider{
		active: active,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.now == nil {
		provider.now = func() time.Time { return time.Now().UTC() }
	}
	return provider, nil
}

func WithRetiredSecretProvider(retired core.SecretProvider) RotationOption {
	return WithRetiredSecretProviderWindow(retired, KeyRotationWindow{})
}

// WithRetiredSecretProviderWindow registers a retired key that may only
// decrypt while the window allows it. A zero window never expires; a closed
// window lets operators force re-encryption after a rotation grace period.
func WithRetiredSecretProviderWindow(retired core.SecretProvider, window KeyRotationWindow) RotationOption {
	return func(p *RotationSecretProvider) {
		if p == nil || retired == nil {
			return
		}
		p.retired = append(p.retired, retiredKey{provider: retired, window: window})
	}
}

func WithRotationDiagnostics(hook RotationDiagnosticHook) RotationOption {
	return func(p *RotationSecretProvider) {
		if p == nil {
			return
		}
		p.diagnosticHook = hook
	}
}

func WithRotationClock(now func() time.Time) RotationOption {
	return func(p *RotationSecretProvider) {
		if p == nil {
			return
		}
		p.now = now
	}
}

// Encrypt always seals with the active key. Retired keys are read-only so a
// rotation can never produce new rows under an old key.
func (p *RotationSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	ciphertext, err := p.active.Encrypt(ctx, plaintext)
	if err != nil {
		p.emit("encrypt", "active_failed", p.active, err)
		return nil, fmt.Errorf("security: active key encrypt failed: %w", err)
	}
	return ciphertext, nil
}

func (p *RotationSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}
	plaintext, err := p.active.Decrypt(ctx, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	p.emit("decrypt", "active_failed", p.active, err)

	lastErr := err
	for _, retired := range p.retired {
		if !retired.window.Allows(p.clock()) {
			p.emit("decrypt", "retired_expired", retired.provider, nil)
			continue
		}
		plaintext, retiredErr := retired.provider.Decrypt(ctx, ciphertext)
		if retiredErr == nil {
			p.emit("decrypt", "retired_succeeded", retired.provider, nil)
			return plaintext, nil
		}
		p.emit("decrypt", "retired_failed", retired.provider, retiredErr)
		lastErr = retiredErr
	}
	return nil, fmt.Errorf("security: no configured key could decrypt the credential: %w", lastErr)
}

func (p *RotationSecretProvider) Metadata() (string, int) {
	if p == nil {
		return "", 0
	}
	if keyID, version, ok := readProviderMetadata(p.active); ok {
		return keyID, version
	}
	return "", 0
}

func (p *RotationSecretProvider) clock() time.Time {
	if p == nil || p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

func (p *RotationSecretProvider) emit(operation string, outcome string, provider core.SecretProvider, err error) {
	if p == nil || p.diagnosticHook == nil {
		return
	}
	now := p.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.diagnosticHook(RotationDiagnostic{
		OccurredAt: now().UTC(),
		Operation:  operation,
		Outcome:    outcome,
		Provider:   describeSecretProvider(provider),
		Error:      msg,
	})
}

func readProviderMetadata(provider core.SecretProvider) (string, int, bool) {
	if provider == nil {
		return "", 0, false
	}
	metadataProvider, ok := provider.(interface{ Metadata() (string, int) })
	if !ok {
		return "", 0, false
	}
	keyID, version := metadataProvider.Metadata()
	keyID = strings.TrimSpace(keyID)
	if keyID == "" || version <= 0 {
		return "", 0, false
	}
	return keyID, version, true
}

func describeSecretProvider(provider core.SecretProvider) string {
	if provider == nil {
		return ""
	}
	label := reflect.TypeOf(provider).String()
	if keyID, version, ok := readProviderMetadata(provider); ok {
		return fmt.Sprintf("%s(%s:%d)", label, keyID, version)
	}
	return label
}

var _ core.SecretProvider = (*RotationSecretProvider)(nil)
