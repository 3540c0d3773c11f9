package tokensource

import (
	"context"
	"strings"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
)

// Chained tries an ordered list of sources and returns the first success,
// caching it so subsequent calls skip straight to the winner unless
// RetryAll is set. Additive convenience, not one of the named sources in
// spec.md §4.1.
type Chained struct {
	sources    []Source
	retryAll   bool
	successful Source
}

// ChainedOptions configures a Chained source.
type ChainedOptions struct {
	// RetryAll makes every Fetch call try all sources in order again,
	// instead of sticking with the first one that ever succeeded.
	RetryAll bool
}

// NewChained builds a Chained source over sources, tried in order.
func NewChained(sources []Source, opts ChainedOptions) (*Chained, error) {
	if len(sources) == 0 {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "sources"}
	}
	for _, s := range sources {
		if s == nil {
			return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "sources", Value: "sources cannot contain nil"}
		}
	}
	cp := make([]Source, len(sources))
	copy(cp, sources)
	return &Chained{sources: cp, retryAll: opts.RetryAll}, nil
}

// Fetch tries the previously successful source first (unless RetryAll), then
// falls through the chain in order, returning the first success or a
// combined TokenServerError describing every failure.
func (c *Chained) Fetch(ctx context.Context) (*token.Token, error) {
	if c.successful != nil && !c.retryAll {
		return c.successful.Fetch(ctx)
	}

	var reasons []string
	for _, source := range c.sources {
		tok, err := source.Fetch(ctx)
		if err == nil {
			c.successful = source
			return tok, nil
		}
		reasons = append(reasons, err.Error())
	}

	return nil, &errtax.TokenServerError{
		Type:   "fetch_failed",
		Name:   "chained",
		Reason: strings.Join(reasons, "; "),
	}
}
