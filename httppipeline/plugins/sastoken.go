package plugins

import (
	"context"
	"strings"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/token"
)

// SasToken appends a Shared Access Signature to the request URL's query
// string, trimming a leading '?' and surrounding whitespace first.
type SasToken struct {
	Signature  string
	Credential token.Sas
}

func (p *SasToken) Register(c *httppipeline.Client) {
	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		sig := p.resolve(req)
		if sig == "" {
			return nil
		}

		if strings.Contains(req.URL, "?") {
			req.URL = req.URL + "&" + sig
		} else {
			req.URL = req.URL + "?" + sig
		}
		return nil
	})
}

func (p *SasToken) resolve(req *httppipeline.Request) string {
	if v, ok := req.Option("sas_token").(string); ok && v != "" {
		if sas, err := token.NewSas(v); err == nil {
			return sas.Signature()
		}
	}
	if v, ok := req.Option("sas_token").(token.Sas); ok {
		return v.Signature()
	}
	if p.Credential.Signature() != "" {
		return p.Credential.Signature()
	}
	if p.Signature != "" {
		if sas, err := token.NewSas(p.Signature); err == nil {
			return sas.Signature()
		}
	}
	return ""
}
