package plugins

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/nimbus-oss/azurecreds/httppipeline"
)

// RequestId sets x-ms-client-request-id to a lowercase version-4 UUID,
// unless a request_id option overrides it.
type RequestId struct{}

func (RequestId) Register(c *httppipeline.Client) {
	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		id := ""
		if v, ok := req.Option("request_id").(string); ok && v != "" {
			id = v
		} else {
			id = uuid.New().String()
		}
		req.Header.Set("x-ms-client-request-id", strings.ToLower(id))
		return nil
	})
}
