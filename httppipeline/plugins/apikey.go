package plugins

import (
	"context"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/token"
)

// ApiKey adds a header carrying a static API key, optionally prefixed.
type ApiKey struct {
	Key        string // plain string, or set Credential instead
	Credential token.ApiKey
	HeaderName string // default "api-key"
	Prefix     string
}

func (p *ApiKey) Register(c *httppipeline.Client) {
	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		headerName := p.HeaderName
		if v, ok := req.Option("header_name").(string); ok && v != "" {
			headerName = v
		}
		if headerName == "" {
			headerName = "api-key"
		}
		prefix := p.Prefix
		if v, ok := req.Option("prefix").(string); ok && v != "" {
			prefix = v
		}

		key := p.resolveKey(req)
		if key == "" {
			req.SetPrivate("api_key_error", "api key is empty or unset")
			return nil
		}

		value := key
		if prefix != "" {
			value = prefix + " " + key
		}
		req.Header.Set(headerName, value)
		return nil
	})
}

func (p *ApiKey) resolveKey(req *httppipeline.Request) string {
	if v, ok := req.Option("api_key").(string); ok && v != "" {
		return v
	}
	if v, ok := req.Option("api_key").(token.ApiKey); ok {
		return v.Key()
	}
	if p.Credential.Key() != "" {
		return p.Credential.Key()
	}
	return p.Key
}
