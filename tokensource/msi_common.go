package tokensource

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
)

// msiResponse is the shared JSON shape returned by both the IMDS and
// App-Service managed-identity endpoints.
type msiResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresOn   any    `json:"expires_on"`
	ExpiresIn   any    `json:"expires_in"`
	Resource    string `json:"resource"`
	TokenType   string `json:"token_type"`
}

type msiErrorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseMSIResponse decodes a managed-identity token response per spec.md
// §4.3: access_token required; expiry from expires_on (string/int unix
// seconds) if present, else now+expires_in; if neither, InvalidResponse.
// scope comes from the resource field.
func parseMSIResponse(body []byte) (*token.Token, error) {
	var resp msiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errtax.ManagedIdentityError{Type: "invalid_response", Reason: "response body is not valid JSON"}
	}
	if resp.AccessToken == "" {
		return nil, &errtax.ManagedIdentityError{Type: "invalid_response", Reason: "access_token missing from response"}
	}

	now := time.Now().Unix()
	var expiresAt int64
	switch {
	case resp.ExpiresOn != nil:
		expiresAt = parseUnixSeconds(resp.ExpiresOn, now+3600)
	case resp.ExpiresIn != nil:
		expiresAt = now + parseUnixSeconds(resp.ExpiresIn, 3600)
	default:
		return nil, &errtax.ManagedIdentityError{Type: "invalid_response", Reason: "neither expires_on nor expires_in present"}
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiresIn := resp.ExpiresIn
	if f, ok := expiresIn.(float64); ok {
		expiresIn = int64(f)
	}
	return token.New(resp.AccessToken, tokenType, resp.Resource, expiresAt, expiresIn)
}

// parseUnixSeconds accepts a string or numeric JSON value and returns its
// integer value, falling back to fallback on parse failure.
func parseUnixSeconds(v any, fallback int64) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
		return fallback
	default:
		return fallback
	}
}

// parseMSIError decodes a managed-identity error envelope, returning "" if
// the body doesn't look like one.
func parseMSIError(body []byte) (errStr, description string) {
	var env msiErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", ""
	}
	return env.Error, env.ErrorDescription
}
