// Package plugins implements the HTTP pipeline plugins from spec.md §4.5:
// BearerToken, ApiKey, SasToken, SharedKey, RequestId, AzureHeaders, Retry,
// and ErrorHandler.
package plugins

import (
	"context"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/token"
)

// CredentialFetcher is the subset of agent.Manager that BearerToken needs:
// fetch(name) -> {ok, token} | {error, e}.
type CredentialFetcher interface {
	Fetch(ctx context.Context, name string) (*token.Token, error)
}

// BearerToken adds an Authorization: Bearer header, either from a static
// token or by fetching one from a named credential agent. A request-level
// "token"/"credential" option overrides the plugin's configured defaults.
type BearerToken struct {
	Token      string
	Credential string
	Fetcher    CredentialFetcher
}

func (p *BearerToken) Register(c *httppipeline.Client) {
	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		tok := p.Token
		if v, ok := req.Option("token").(string); ok && v != "" {
			tok = v
		}

		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			return nil
		}

		cred := p.Credential
		if v, ok := req.Option("credential").(string); ok && v != "" {
			cred = v
		}
		if cred == "" {
			return nil
		}

		t, err := p.Fetcher.Fetch(ctx, cred)
		if err != nil {
			req.SetPrivate("bearer_token_error", err)
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+t.AccessToken)
		return nil
	})
}
