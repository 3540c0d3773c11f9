package plugins

import (
	"context"
	"encoding/json"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/httppipeline"
)

// ErrorHandler normalizes a final status >= 400 into an errtax.HttpError,
// using the body-shape precedence from spec.md §4.5. If Raise is false, the
// error is stashed on Response.Err instead of propagating out of Client.Do.
// If Raise is true, the error propagates out of Client.Do only when the
// Client was built with RaiseOnError; otherwise Client.Do stashes it on
// Response.Err as well.
type ErrorHandler struct {
	Raise bool
}

type nestedErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type flatErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *ErrorHandler) Register(c *httppipeline.Client) {
	c.AddResponseStep(func(ctx context.Context, req *httppipeline.Request, resp *httppipeline.Response) error {
		if resp.StatusCode < 400 {
			return nil
		}

		code, message := extractErrorDetails(resp.Body)
		if message == "" {
			message = errtax.StatusText(resp.StatusCode)
		}

		httpErr := &errtax.HttpError{
			Status:    resp.StatusCode,
			ErrorCode: code,
			Message:   message,
			RequestID: resp.RequestID,
			URL:       req.URL,
		}

		if p.Raise {
			return httpErr
		}
		resp.Err = httpErr
		return nil
	})
}

// extractErrorDetails tries, in order: {"error":{"code","message"}}, a flat
// {"code","message"}, then a bare JSON string used as the message.
func extractErrorDetails(body []byte) (code, message string) {
	var nested nestedErrorBody
	if err := json.Unmarshal(body, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Code, nested.Error.Message
	}

	var flat flatErrorBody
	if err := json.Unmarshal(body, &flat); err == nil && flat.Message != "" {
		return flat.Code, flat.Message
	}

	var str string
	if err := json.Unmarshal(body, &str); err == nil && str != "" {
		return "", str
	}

	return "", ""
}
