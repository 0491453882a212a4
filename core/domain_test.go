package core

import (
	"errors"
	"testing"
	"time"
)

func TestInstallationTransitionTo_Lifecycle(t *testing.T) {
	cases := []struct {
		name    string
		from    InstallationStatus
		to      InstallationStatus
		token   string
		wantErr error
	}{
		{name: "pending activates with credential", from: InstallationStatusPending, to: InstallationStatusActive, token: "dit_abc"},
		{name: "pending activation requires credential", from: InstallationStatusPending, to: InstallationStatusActive, wantErr: ErrCredentialRequired},
		{name: "pending can be parked", from: InstallationStatusPending, to: InstallationStatusInactive},
		{name: "pending can fail", from: InstallationStatusPending, to: InstallationStatusFailed},
		{name: "active deactivates", from: InstallationStatusActive, to: InstallationStatusInactive, token: "dit_abc"},
		{name: "active cannot fail directly", from: InstallationStatusActive, to: InstallationStatusFailed, token: "dit_abc", wantErr: ErrInvalidInstallationStatusTransition},
		{name: "inactive reopens", from: InstallationStatusInactive, to: InstallationStatusPending},
		{name: "inactive cannot activate directly", from: InstallationStatusInactive, to: InstallationStatusActive, token: "dit_abc", wantErr: ErrInvalidInstallationStatusTransition},
		{name: "failed reopens", from: InstallationStatusFailed, to: InstallationStatusPending},
		{name: "failed cannot activate directly", from: InstallationStatusFailed, to: InstallationStatusActive, token: "dit_abc", wantErr: ErrInvalidInstallationStatusTransition},
		{name: "failed cannot deactivate", from: InstallationStatusFailed, to: InstallationStatusInactive, wantErr: ErrInvalidInstallationStatusTransition},
	}

	now := time.Date(2026, 2, 13, 10, 30, 0, 0, time.UTC)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			installation := Installation{
				InstallationID:      "inst-1",
				Status:              tc.from,
				AuthenticationToken: tc.token,
			}
			err := installation.TransitionTo(tc.to, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if installation.Status != tc.from {
					t.Fatalf("rejected transition must not change status, got %q", installation.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("transition %s -> %s: %v", tc.from, tc.to, err)
			}
			if installation.Status != tc.to {
				t.Fatalf("expected status %q, got %q", tc.to, installation.Status)
			}
			if !installation.UpdatedAt.Equal(now) {
				t.Fatalf("expected updated_at %v, got %v", now, installation.UpdatedAt)
			}
		})
	}
}

func TestInstallationTransitionTo_SameStatusTouchesTimestamp(t *testing.T) {
	created := time.Date(2026, 2, 13, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 13, 10, 30, 0, 0, time.UTC)
	installation := Installation{
		InstallationID: "inst-1",
		Status:         InstallationStatusPending,
		UpdatedAt:      created,
	}

	if err := installation.TransitionTo(InstallationStatusPending, now); err != nil {
		t.Fatalf("same-status transition should be a no-op, got %v", err)
	}
	if installation.Status != InstallationStatusPending {
		t.Fatalf("expected pending, got %q", installation.Status)
	}
	if !installation.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at to advance to %v, got %v", now, installation.UpdatedAt)
	}
}

func TestParseResourceKind_NormalizesInput(t *testing.T) {
	cases := []struct {
		raw  string
		want ResourceKind
	}{
		{raw: "product", want: ResourceKindProduct},
		{raw: " Order ", want: ResourceKindOrder},
		{raw: "CUSTOMER", want: ResourceKindCustomer},
		{raw: "rep", want: ResourceKindRep},
	}
	for _, tc := range cases {
		kind, err := ParseResourceKind(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if kind != tc.want {
			t.Fatalf("parse %q: expected %q, got %q", tc.raw, tc.want, kind)
		}
	}

	if _, err := ParseResourceKind("warehouse"); !errors.Is(err, ErrInvalidResourceKind) {
		t.Fatalf("expected ErrInvalidResourceKind, got %v", err)
	}
	if _, err := ParseResourceKind(""); !errors.Is(err, ErrInvalidResourceKind) {
		t.Fatalf("expected ErrInvalidResourceKind for empty input, got %v", err)
	}
}

func TestSubscriptionEntryKey_Normalizes(t *testing.T) {
	entry := SubscriptionEntry{Resource: " Product ", Event: " Created "}
	if got := entry.Key(); got != "product:created" {
		t.Fatalf("expected product:created, got %q", got)
	}
}
