// Package token holds the immutable value types that flow through
// azurecreds: the acquired access-token record and the static credential
// values (ApiKey, Sas, NamedKey) used by the HTTP plugins.
package token

import (
	"encoding/base64"
	"time"

	"github.com/nimbus-oss/azurecreds/errtax"
)

// Token is an immutable access-token record. AccessToken is treated as
// secret and never appears in String()/logging output.
type Token struct {
	AccessToken string
	TokenType   string // typically "Bearer"
	Scope       string // may be empty
	ExpiresAt   int64  // absolute unix seconds, authoritative
	ExpiresIn   any    // relative seconds, informational: int64 or string verbatim from the source
}

// New builds a Token record, applying the invariants from the data model:
// AccessToken must be non-empty and ExpiresAt must be non-negative.
func New(accessToken, tokenType, scope string, expiresAt int64, expiresIn any) (*Token, error) {
	if accessToken == "" {
		return nil, &errtax.InvalidTokenFormat{Reason: "access_token is empty"}
	}
	if expiresAt < 0 {
		return nil, &errtax.InvalidTokenFormat{Reason: "expires_at is negative"}
	}
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Token{
		AccessToken: accessToken,
		TokenType:   tokenType,
		Scope:       scope,
		ExpiresAt:   expiresAt,
		ExpiresIn:   expiresIn,
	}, nil
}

// ExpiresWithin reports whether the token's absolute expiry is at or before
// now+within.
func (t *Token) ExpiresWithin(now time.Time, within time.Duration) bool {
	return t.ExpiresAt <= now.Add(within).Unix()
}

// String redacts AccessToken; tokens must never be logged in full.
func (t *Token) String() string {
	if t == nil {
		return "<nil token>"
	}
	return "Token{access_token: ***, token_type: " + t.TokenType + "}"
}

// ApiKey is an immutable static API-key credential value.
type ApiKey struct {
	key string
}

// NewApiKey validates and constructs an ApiKey. The key must be non-empty.
func NewApiKey(key string) (ApiKey, error) {
	if key == "" {
		return ApiKey{}, &errtax.CredentialError{Type: "invalid_key"}
	}
	return ApiKey{key: key}, nil
}

// Key returns the raw key value.
func (a ApiKey) Key() string { return a.key }

// Update returns a new ApiKey with a different key; it does not mutate a.
func (a ApiKey) Update(key string) (ApiKey, error) {
	return NewApiKey(key)
}

func (a ApiKey) Equal(other ApiKey) bool { return a.key == other.key }

func (a ApiKey) String() string { return "ApiKey{***}" }

// Sas is an immutable Shared Access Signature credential value. The stored
// signature never carries a leading '?'.
type Sas struct {
	signature string
}

// NewSas validates and constructs a Sas, trimming a leading '?' and
// surrounding whitespace so that New("?s") == New("s") == New("  s  ").
func NewSas(signature string) (Sas, error) {
	trimmed := normalizeSas(signature)
	if trimmed == "" {
		return Sas{}, &errtax.CredentialError{Type: "invalid_signature"}
	}
	return Sas{signature: trimmed}, nil
}

func normalizeSas(signature string) string {
	s := trimSpace(signature)
	if len(s) > 0 && s[0] == '?' {
		s = s[1:]
	}
	return trimSpace(s)
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Signature returns the normalized signature (no leading '?').
func (s Sas) Signature() string { return s.signature }

// Update returns a new Sas with a different signature; it does not mutate s.
func (s Sas) Update(signature string) (Sas, error) {
	return NewSas(signature)
}

func (s Sas) Equal(other Sas) bool { return s.signature == other.signature }

func (s Sas) String() string { return "Sas{***}" }

// NamedKey is an immutable named Shared-Key credential value (Azure
// Storage): an account name paired with a base64-encoded key.
type NamedKey struct {
	name string
	key  string
}

// NewNamedKey validates and constructs a NamedKey. Both name and key must be
// non-empty, and key must be valid base64.
func NewNamedKey(name, key string) (NamedKey, error) {
	if name == "" || key == "" {
		return NamedKey{}, &errtax.CredentialError{Type: "invalid_named_key"}
	}
	if _, err := base64.StdEncoding.DecodeString(key); err != nil {
		return NamedKey{}, &errtax.CredentialError{Type: "invalid_named_key"}
	}
	return NamedKey{name: name, key: key}, nil
}

// Name returns the account/key name.
func (n NamedKey) Name() string { return n.name }

// Key returns the raw base64-encoded key.
func (n NamedKey) Key() string { return n.key }

// Update returns a new NamedKey with a different name/key; it does not
// mutate n.
func (n NamedKey) Update(name, key string) (NamedKey, error) {
	return NewNamedKey(name, key)
}

func (n NamedKey) Equal(other NamedKey) bool { return n.name == other.name && n.key == other.key }

func (n NamedKey) String() string { return "NamedKey{" + n.name + ": ***}" }
