package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	TokenPayloadFormatRaw    = "raw_token"
	TokenPayloadFormatJSONV1 = "durable_token_json"
	TokenPayloadVersionV1    = 1
)

// DurableToken is the decoded at-rest credential payload. Source records
// whether the token came from the exchange endpoint or fell back to the
// short-lived install token.
type DurableToken struct {
	Token    string
	Source   string
	IssuedAt *time.Time
}

// TokenCodec converts a durable token to and from the byte payload handed to
// the SecretProvider. The codec shapes the plaintext; encryption is layered
// on top.
type TokenCodec interface {
	Format() string
	Version() int
	Encode(token DurableToken) ([]byte, error)
	Decode(payload []byte) (DurableToken, error)
}

type JSONTokenCodec struct{}

func (JSONTokenCodec) Format() string {
	return TokenPayloadFormatJSONV1
}

func (JSONTokenCodec) Version() int {
	return TokenPayloadVersionV1
}

type jsonTokenPayload struct {
	Token    string     `json:"token"`
	Source   string     `json:"source,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

func (JSONTokenCodec) Encode(token DurableToken) ([]byte, error) {
	if strings.TrimSpace(token.Token) == "" {
		return nil, fmt.Errorf("core: token payload requires a token")
	}
	payload := jsonTokenPayload{
		Token:    strings.TrimSpace(token.Token),
		Source:   strings.TrimSpace(token.Source),
		IssuedAt: cloneTimePointer(token.IssuedAt),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode token payload: %w", err)
	}
	return encoded, nil
}

func (JSONTokenCodec) Decode(payload []byte) (DurableToken, error) {
	if len(payload) == 0 {
		return DurableToken{}, fmt.Errorf("core: token payload is empty")
	}
	decoded := jsonTokenPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Rows written before the JSON envelope hold the bare token.
		return RawTokenCodec{}.Decode(payload)
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return DurableToken{}, fmt.Errorf("core: token payload is missing its token")
	}
	return DurableToken{
		Token:    strings.TrimSpace(decoded.Token),
		Source:   strings.TrimSpace(decoded.Source),
		IssuedAt: cloneTimePointer(decoded.IssuedAt),
	}, nil
}

type RawTokenCodec struct{}

func (RawTokenCodec) Format() string {
	return TokenPayloadFormatRaw
}

func (RawTokenCodec) Version() int {
	return TokenPayloadVersionV1
}

func (RawTokenCodec) Encode(token DurableToken) ([]byte, error) {
	trimmed := strings.TrimSpace(token.Token)
	if trimmed == "" {
		return nil, fmt.Errorf("core: raw token payload requires a token")
	}
	return []byte(trimmed), nil
}

func (RawTokenCodec) Decode(payload []byte) (DurableToken, error) {
	token := strings.TrimSpace(string(payload))
	if token == "" {
		return DurableToken{}, fmt.Errorf("core: raw token payload is empty")
	}
	return DurableToken{Token: token}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}
