package core

import (
	"context"
	"testing"
	"time"
)

func TestJSONTokenCodec_RoundTrip(t *testing.T) {
	issued := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	codec := JSONTokenCodec{}
	encoded, err := codec.Encode(DurableToken{
		Token:    "dit_abc",
		Source:   "exchange",
		IssuedAt: &issued,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Token != "dit_abc" {
		t.Fatalf("expected token roundtrip, got %q", decoded.Token)
	}
	if decoded.Source != "exchange" {
		t.Fatalf("expected source roundtrip, got %q", decoded.Source)
	}
	if decoded.IssuedAt == nil || !decoded.IssuedAt.Equal(issued) {
		t.Fatalf("expected issued_at roundtrip, got %v", decoded.IssuedAt)
	}
}

func TestJSONTokenCodec_RejectsEmptyToken(t *testing.T) {
	codec := JSONTokenCodec{}
	if _, err := codec.Encode(DurableToken{Token: "   "}); err == nil {
		t.Fatalf("expected encode to reject an empty token")
	}
	if _, err := codec.Decode([]byte(`{"source":"exchange"}`)); err == nil {
		t.Fatalf("expected decode to reject a payload without a token")
	}
}

func TestJSONTokenCodec_FallsBackToRawPayload(t *testing.T) {
	codec := JSONTokenCodec{}
	decoded, err := codec.Decode([]byte("dit_legacy"))
	if err != nil {
		t.Fatalf("decode legacy payload: %v", err)
	}
	if decoded.Token != "dit_legacy" {
		t.Fatalf("expected the bare token, got %q", decoded.Token)
	}
	if decoded.Source != "" || decoded.IssuedAt != nil {
		t.Fatalf("legacy payloads carry no envelope fields, got %+v", decoded)
	}
}

func TestRawTokenCodec_RoundTrip(t *testing.T) {
	codec := RawTokenCodec{}
	encoded, err := codec.Encode(DurableToken{Token: " dit_abc "})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(encoded) != "dit_abc" {
		t.Fatalf("expected the trimmed token bytes, got %q", encoded)
	}
	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Token != "dit_abc" {
		t.Fatalf("expected token roundtrip, got %q", decoded.Token)
	}
}

func TestService_InstallationCredential_ReadsLegacyRows(t *testing.T) {
	ctx := context.Background()
	svc, deps, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.UpsertInstallation(ctx, UpsertInstallationRequest{InstallationID: "inst-100"}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	sealed, err := testSecretProvider{}.Encrypt(ctx, []byte("dit_legacy"))
	if err != nil {
		t.Fatalf("seal legacy credential: %v", err)
	}
	if err := deps.installations.SaveCredential(ctx, "inst-100", sealed); err != nil {
		t.Fatalf("store legacy credential: %v", err)
	}

	credential, err := svc.InstallationCredential(ctx, "inst-100")
	if err != nil {
		t.Fatalf("installation credential: %v", err)
	}
	if credential != "dit_legacy" {
		t.Fatalf("expected the legacy token, got %q", credential)
	}
}
