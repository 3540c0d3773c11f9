package tokensource

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
	"github.com/nimbus-oss/azurecreds/transport"
)

const imdsEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"
const imdsAPIVersion = "2019-08-01"
const imdsMaxAttempts = 5

// imdsProvider implements the Instance Metadata Service managed-identity
// flow, including its bounded 429/503 retry policy (spec.md §4.3).
type imdsProvider struct {
	doer   transport.HTTPDoer
	log    lager.Logger
	sleep  func(time.Duration)
	nowFor func() time.Time
}

func newIMDSProvider(doer transport.HTTPDoer, log lager.Logger) *imdsProvider {
	return &imdsProvider{
		doer:   doer,
		log:    log.Session("imds"),
		sleep:  time.Sleep,
		nowFor: time.Now,
	}
}

func (p *imdsProvider) fetch(ctx context.Context, resource, clientID, objectID, miResID string, timeout time.Duration) (*token.Token, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	values := url.Values{}
	values.Set("api-version", imdsAPIVersion)
	values.Set("resource", resource)
	switch {
	case clientID != "":
		values.Set("client_id", clientID)
	case objectID != "":
		values.Set("object_id", objectID)
	case miResID != "":
		values.Set("mi_res_id", miResID)
	}
	endpoint := imdsEndpoint + "?" + values.Encode()

	var lastErr error
	for attempt := 0; attempt < imdsMaxAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			return nil, &errtax.ManagedIdentityError{Type: "imds_unavailable", Provider: "imds", Reason: err.Error()}
		}
		req.Header.Set("Metadata", "true")

		resp, err := p.doer.Do(req)
		cancel()
		if err != nil {
			lastErr = &errtax.ManagedIdentityError{Type: "imds_unavailable", Provider: "imds", Reason: err.Error()}
			p.log.Error("request-failed", err, lager.Data{"attempt": attempt})
			p.sleep(p.backoff(attempt, ""))
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return parseMSIResponse(body)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = &errtax.ManagedIdentityError{Type: "imds_unavailable", Provider: "imds", Status: resp.StatusCode, Reason: "throttled"}
			p.sleep(p.backoff(attempt, resp.Header.Get("Retry-After")))
			continue
		}

		errStr, description := parseMSIError(body)
		return nil, &errtax.ManagedIdentityError{Type: "provider_error", Provider: "imds", Status: resp.StatusCode, Reason: errStr + ": " + description}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &errtax.ManagedIdentityError{Type: "imds_unavailable", Provider: "imds", Reason: "exhausted retries"}
}

// backoff honors a parseable Retry-After (seconds) header, else applies
// min(500*2^attempt, 5000) ms exponential backoff, per spec.md §4.3.
func (p *imdsProvider) backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	ms := 500 * (1 << attempt)
	if ms > 5000 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}
