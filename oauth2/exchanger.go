// Package oauth2 implements the single OAuth2 JWT-bearer exchange against
// Azure AD described in spec.md §4.1: an external assertion is traded for an
// Azure AD access token at /{tenant}/oauth2/v2.0/token. It never holds
// state between calls, grounded on atc/creds/vault/api_client.go's plain
// HTTP-POST-then-decode shape.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
	"github.com/nimbus-oss/azurecreds/transport"
)

const grantType = "client_credentials"
const assertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Config describes a single exchange request.
type Config struct {
	TenantID       string
	ClientID       string
	Assertion      string
	Scope          string
	Cloud          Cloud
	CustomBaseURL  string // used only when Cloud == CloudCustom
	RequestTimeout time.Duration
}

// Exchanger performs OAuth2 JWT-bearer exchanges against Azure AD.
type Exchanger struct {
	Transport transport.HTTPDoer
	Logger    lager.Logger
}

// New constructs an Exchanger bound to the given transport and logger.
func New(doer transport.HTTPDoer, logger lager.Logger) *Exchanger {
	return &Exchanger{Transport: doer, Logger: logger.Session("oauth2-exchanger")}
}

// Endpoint builds the {base}/{tenant}/oauth2/v2.0/token URL for a Config.
func Endpoint(cfg Config) (string, error) {
	base := cfg.CustomBaseURL
	if cfg.Cloud != CloudCustom {
		base = cfg.Cloud.Host()
		if base == "" {
			base = CloudPublic.Host()
		}
		base = "https://" + base
	}
	if base == "" {
		return "", &errtax.ConfigurationError{Type: "missing_required", Key: "custom_base_url"}
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimRight(base, "/"), cfg.TenantID), nil
}

// Exchange performs the token request and returns a normalized Token
// record, or a typed error (AzureAdStsError, InvalidTokenFormat,
// NetworkError).
func (e *Exchanger) Exchange(ctx context.Context, cfg Config) (*token.Token, error) {
	endpoint, err := Endpoint(cfg)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", cfg.ClientID)
	form.Set("client_assertion_type", assertionType)
	form.Set("client_assertion", cfg.Assertion)
	form.Set("scope", cfg.Scope)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &errtax.NetworkError{Service: "azure_oauth2", Endpoint: endpoint, Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.Transport.Do(httpReq)
	if err != nil {
		e.Logger.Error("exchange-failed", err, lager.Data{"endpoint": endpoint})
		return nil, &errtax.NetworkError{Service: "azure_oauth2", Endpoint: endpoint, Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errtax.NetworkError{Service: "azure_oauth2", Endpoint: endpoint, Reason: err.Error()}
	}

	if resp.StatusCode == http.StatusOK {
		return parseSuccess(body)
	}
	return nil, parseSTSFailure(body)
}

type successResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   any    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

func parseSuccess(body []byte) (*token.Token, error) {
	var resp successResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &errtax.InvalidTokenFormat{Reason: "response body is not valid JSON"}
	}
	if resp.AccessToken == "" {
		return nil, &errtax.InvalidTokenFormat{Reason: "access_token missing from response"}
	}
	if resp.ExpiresIn == nil {
		return nil, &errtax.InvalidTokenFormat{Reason: "expires_in missing from response"}
	}

	now := time.Now().Unix()
	expiresAt := now + 3600
	expiresIn := resp.ExpiresIn
	switch v := resp.ExpiresIn.(type) {
	case float64:
		expiresAt = now + int64(v)
		expiresIn = int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			expiresAt = now + n
		}
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return token.New(resp.AccessToken, tokenType, resp.Scope, expiresAt, expiresIn)
}

type stsErrorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
}

func parseSTSFailure(body []byte) error {
	var env stsErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return errtax.MapSTSError("authentication_failed", "unparseable STS error response", nil)
	}
	return errtax.MapSTSError(env.Error, env.ErrorDescription, env.ErrorCodes)
}
