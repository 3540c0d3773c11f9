package httppipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/transport"
)

// RequestStep runs, in append order, before the request is transmitted.
type RequestStep func(ctx context.Context, req *Request) error

// ResponseStep runs, in append order, after a successful round trip.
type ResponseStep func(ctx context.Context, req *Request, resp *Response) error

// Plugin registers its steps on a Client. Plugins that need to see every
// transport attempt (Retry) instead implement Wrapper and are layered
// around the Client's HTTPDoer rather than appended as steps.
type Plugin interface {
	Register(c *Client)
}

// Wrapper plugins decorate the underlying transport, e.g. to retry failed
// attempts. A Client applies wrappers in the order its plugin list gives
// them, outermost last.
type Wrapper interface {
	Wrap(doer transport.HTTPDoer) transport.HTTPDoer
}

// Options configures a Client, per spec.md §4.6's Client.new(opts).
type Options struct {
	BaseURL        string
	Doer           transport.HTTPDoer
	DefaultHeaders http.Header
	ReceiveTimeout time.Duration
	RaiseOnError   bool
	Plugins        []Plugin
	Logger         lager.Logger
}

// Client binds a base URL, default headers, and an ordered plugin chain,
// and executes Requests through it.
type Client struct {
	baseURL        string
	doer           transport.HTTPDoer
	defaultHeaders http.Header
	receiveTimeout time.Duration
	raiseOnError   bool
	log            lager.Logger

	requestSteps  []RequestStep
	responseSteps []ResponseStep
}

// New builds a Client and lets every plugin register itself.
func New(opts Options) *Client {
	c := &Client{
		baseURL:        opts.BaseURL,
		defaultHeaders: opts.DefaultHeaders,
		receiveTimeout: opts.ReceiveTimeout,
		raiseOnError:   opts.RaiseOnError,
		log:            opts.Logger,
	}
	if c.log == nil {
		c.log = lager.NewLogger("httppipeline")
	}
	if c.defaultHeaders == nil {
		c.defaultHeaders = http.Header{}
	}

	doer := opts.Doer
	for _, p := range opts.Plugins {
		if w, ok := p.(Wrapper); ok {
			doer = w.Wrap(doer)
			continue
		}
		p.Register(c)
	}
	c.doer = doer
	return c
}

// AddRequestStep appends a request step. Called by plugins from Register.
func (c *Client) AddRequestStep(s RequestStep) { c.requestSteps = append(c.requestSteps, s) }

// AddResponseStep appends a response step. Called by plugins from Register.
func (c *Client) AddResponseStep(s ResponseStep) { c.responseSteps = append(c.responseSteps, s) }

// Do runs req through the request steps, transmits it, then runs the
// response steps over the normalized result, per spec.md §4.6.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	for _, step := range c.requestSteps {
		if err := step(ctx, req); err != nil {
			return nil, err
		}
	}

	fullURL := c.baseURL + req.URL
	if c.receiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.receiveTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "url", Value: fullURL}
	}
	for k, vv := range c.defaultHeaders {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: err.Error()}
	}

	normalized := &Response{
		StatusCode:      resp.StatusCode,
		Header:          normalizeHeader(resp.Header),
		Body:            body,
		RequestID:       resp.Header.Get("x-ms-request-id"),
		ClientRequestID: resp.Header.Get("x-ms-client-request-id"),
	}

	for _, step := range c.responseSteps {
		if err := step(ctx, req, normalized); err != nil {
			if c.raiseOnError {
				return normalized, err
			}
			normalized.Err = err
		}
	}

	return normalized, nil
}

// normalizeHeader lowercases header names and joins repeated values with
// ", ", per spec.md §3's Response header shape.
func normalizeHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		out[strings.ToLower(k)] = strings.Join(vv, ", ")
	}
	return out
}
