package tokensource

import (
	"context"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/federation"
	"github.com/nimbus-oss/azurecreds/oauth2"
	"github.com/nimbus-oss/azurecreds/token"
)

// ClientAssertionConfig configures the federation -> OAuth2 JWT-bearer flow.
type ClientAssertionConfig struct {
	TenantID      string
	ClientID      string
	Scope         string
	Provider      string // federation tag, e.g. "aws_cognito"
	ProviderOpts  map[string]any
	Cloud         oauth2.Cloud
	CustomBaseURL string // used only when Cloud == oauth2.CloudCustom
}

// ClientAssertion obtains an external assertion from a federated-token
// provider, then exchanges it for an Azure AD token.
type ClientAssertion struct {
	cfg        ClientAssertionConfig
	dispatcher *federation.Dispatcher
	exchanger  *oauth2.Exchanger
}

// NewClientAssertion validates cfg and constructs a ClientAssertion source.
func NewClientAssertion(cfg ClientAssertionConfig, dispatcher *federation.Dispatcher, exchanger *oauth2.Exchanger) (*ClientAssertion, error) {
	if cfg.TenantID == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "tenant_id"}
	}
	if cfg.ClientID == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "client_id"}
	}
	if cfg.Scope == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "scope"}
	}
	if cfg.Provider == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "provider"}
	}
	if cfg.Cloud == "" {
		cfg.Cloud = oauth2.CloudPublic
	}
	return &ClientAssertion{cfg: cfg, dispatcher: dispatcher, exchanger: exchanger}, nil
}

// Fetch obtains the assertion then performs the OAuth2 exchange. Errors from
// either step propagate unchanged, per spec.md §4.3.
func (c *ClientAssertion) Fetch(ctx context.Context) (*token.Token, error) {
	assertion, err := c.dispatcher.Fetch(ctx, c.cfg.Provider, c.cfg.ProviderOpts)
	if err != nil {
		return nil, err
	}

	return c.exchanger.Exchange(ctx, oauth2.Config{
		TenantID:      c.cfg.TenantID,
		ClientID:      c.cfg.ClientID,
		Assertion:     assertion,
		Scope:         c.cfg.Scope,
		Cloud:         c.cfg.Cloud,
		CustomBaseURL: c.cfg.CustomBaseURL,
	})
}
