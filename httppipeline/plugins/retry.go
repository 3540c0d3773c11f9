package plugins

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/transport"
)

var defaultRetryStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Retry wraps the client's transport with bounded retries over a fixed set
// of statuses and transport errors. Honors a parseable Retry-After header;
// otherwise sleeps a jittered exponential backoff, per spec.md §4.5.
type Retry struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RetryStatuses map[int]bool

	sleep func(time.Duration)
}

// SetSleepForTest overrides the sleep function used between retries.
// Exported for tests; production callers should leave this unset.
func (p *Retry) SetSleepForTest(sleep func(time.Duration)) {
	p.sleep = sleep
}

// Register satisfies the Plugin interface. Retry is a Wrapper, so
// Client.New detects it via the Wrapper type assertion and never calls
// this; it exists only so Retry can appear in a []Plugin literal.
func (p *Retry) Register(c *httppipeline.Client) {}

func (p *Retry) Wrap(doer transport.HTTPDoer) transport.HTTPDoer {
	maxRetries := p.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	baseDelay := p.BaseDelay
	if baseDelay == 0 {
		baseDelay = 1000 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay == 0 {
		maxDelay = 32000 * time.Millisecond
	}
	statuses := p.RetryStatuses
	if statuses == nil {
		statuses = defaultRetryStatuses
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &retryingDoer{
		next:       doer,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		statuses:   statuses,
		sleep:      sleep,
	}
}

type retryingDoer struct {
	next       transport.HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	statuses   map[int]bool
	sleep      func(time.Duration)
}

func (d *retryingDoer) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		resp, err := d.next.Do(req)
		if err == nil && !d.statuses[resp.StatusCode] {
			return resp, nil
		}

		lastResp, lastErr = resp, err
		if attempt == d.maxRetries {
			break
		}

		d.sleep(d.delay(attempt, resp))
	}

	return lastResp, lastErr
}

// delay honors Retry-After when present on resp, else a jittered
// exponential backoff built on retryablehttp's default exponential curve.
func (d *retryingDoer) delay(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}

	base := retryablehttp.DefaultBackoff(d.baseDelay, d.maxDelay, attempt, nil)
	jitterCeiling := int64(float64(base) * 0.2)
	var jitter time.Duration
	if jitterCeiling > 0 {
		jitter = time.Duration(rand.Int63n(jitterCeiling))
	}

	total := base + jitter
	if total > d.maxDelay {
		total = d.maxDelay
	}
	return total
}
