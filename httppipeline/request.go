// Package httppipeline implements the composable HTTP plugin pipeline from
// spec.md §4.5-4.6: an ordered chain of request/response steps bound to a
// Client, plus Wrapper plugins that decorate its transport, mirroring the middleware-as-functions style used across the
// teacher's HTTP-adjacent packages.
package httppipeline

import "net/http"

// Request is the pipeline's request value. Plugins read and mutate it
// in place; Options carries plugin configuration keyed by option name
// (e.g. api_key, sas_token, request_id),
// private carries plugin-internal results not meant for transmission
// (e.g. bearer_token_error).
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	Options map[string]any

	private map[string]any
}

// NewRequest builds an empty Request for method/url.
func NewRequest(method, url string) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Header:  http.Header{},
		Options: map[string]any{},
		private: map[string]any{},
	}
}

// SetPrivate stashes a plugin-internal value under key.
func (r *Request) SetPrivate(key string, value any) {
	if r.private == nil {
		r.private = map[string]any{}
	}
	r.private[key] = value
}

// Private retrieves a previously stashed plugin-internal value.
func (r *Request) Private(key string) (any, bool) {
	v, ok := r.private[key]
	return v, ok
}

// Option fetches a named plugin option, defaulting to nil when absent.
func (r *Request) Option(key string) any {
	if r.Options == nil {
		return nil
	}
	return r.Options[key]
}
