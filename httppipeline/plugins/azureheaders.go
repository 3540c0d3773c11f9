package plugins

import (
	"context"
	"time"

	"github.com/nimbus-oss/azurecreds/httppipeline"
)

// gmt is used instead of time.UTC so RFC1123 renders the zone abbreviation
// as "GMT" rather than Go's default "UTC".
var gmt = time.FixedZone("GMT", 0)

// AzureHeaders adds x-ms-version, x-ms-date, and
// x-ms-return-client-request-id per spec.md §4.5.
type AzureHeaders struct {
	Now func() time.Time // defaults to time.Now, overridable for tests
}

func (p *AzureHeaders) Register(c *httppipeline.Client) {
	now := p.Now
	if now == nil {
		now = time.Now
	}

	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		if v, ok := req.Option("api_version").(string); ok && v != "" {
			req.Header.Set("x-ms-version", v)
		}

		includeDate := true
		if v, ok := req.Option("include_date").(bool); ok {
			includeDate = v
		}
		if includeDate {
			req.Header.Set("x-ms-date", now().In(gmt).Format(time.RFC1123))
		}

		req.Header.Set("x-ms-return-client-request-id", "true")
		return nil
	})
}
