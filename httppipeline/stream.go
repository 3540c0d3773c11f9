package httppipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nimbus-oss/azurecreds/errtax"
)

// ReduceFunc folds one chunk of a streamed response body into an
// accumulator. Returning halt=true stops reading early; final is the
// value returned from DoStreamReduce.
type ReduceFunc func(chunk []byte, acc any) (next any, halt bool)

// StreamChunk is one message delivered to a StreamSink channel, per
// spec.md §4.6's message-stream mode. A stream ends with exactly one
// chunk carrying Done=true, or one carrying a non-nil Err, unless ctx is
// cancelled while a data chunk is waiting to be received; the channel is
// then closed with no terminal chunk.
type StreamChunk struct {
	Ref  string
	Data []byte
	Done bool
	Err  error
}

// doStreamRequest runs the request/transport machinery shared by every
// streaming mode, stopping short of buffering the whole body into memory.
func (c *Client) doStreamRequest(ctx context.Context, req *Request) (*http.Response, string, error) {
	for _, step := range c.requestSteps {
		if err := step(ctx, req); err != nil {
			return nil, "", err
		}
	}

	fullURL := c.baseURL + req.URL
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, "", &errtax.ConfigurationError{Type: "invalid_value", Key: "url", Value: fullURL}
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
		return nil, fullURL, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: err.Error()}
	}
	return resp, fullURL, nil
}

// DoStreamFile streams the response body directly to destPath, writing to
// a sibling temp file first and renaming into place on success so a
// failed transfer never leaves a partial file at destPath.
func (c *Client) DoStreamFile(ctx context.Context, req *Request, destPath string) (statusCode int, err error) {
	resp, fullURL, err := c.doStreamRequest(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return 0, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: err.Error()}
	}
	tmpPath := tmp.Name()

	if _, copyErr := io.Copy(tmp, resp.Body); copyErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return resp.StatusCode, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: copyErr.Error()}
	}
	if closeErr := tmp.Close(); closeErr != nil {
		os.Remove(tmpPath)
		return resp.StatusCode, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: closeErr.Error()}
	}
	if renameErr := os.Rename(tmpPath, destPath); renameErr != nil {
		os.Remove(tmpPath)
		return resp.StatusCode, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: renameErr.Error()}
	}

	return resp.StatusCode, nil
}

// DoStreamReduce folds the response body through fn one read-buffer at a
// time, starting from init, stopping early if fn reports halt.
func (c *Client) DoStreamReduce(ctx context.Context, req *Request, init any, fn ReduceFunc) (statusCode int, final any, err error) {
	resp, fullURL, err := c.doStreamRequest(ctx, req)
	if err != nil {
		return 0, init, err
	}
	defer resp.Body.Close()

	acc := init
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			next, halt := fn(chunk, acc)
			acc = next
			if halt {
				return resp.StatusCode, acc, nil
			}
		}
		if readErr == io.EOF {
			return resp.StatusCode, acc, nil
		}
		if readErr != nil {
			return resp.StatusCode, acc, &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: readErr.Error()}
		}
	}
}

// DoStreamChannel streams the response body as a sequence of StreamChunk
// values tagged with ref, terminated by exactly one chunk with Done=true
// or Err set. The returned channel is closed after the terminal chunk, or
// without one if ctx is cancelled while a data chunk is waiting to be
// received.
func (c *Client) DoStreamChannel(ctx context.Context, req *Request, ref string) <-chan StreamChunk {
	out := make(chan StreamChunk)

	go func() {
		defer close(out)

		resp, fullURL, err := c.doStreamRequest(ctx, req)
		if err != nil {
			out <- StreamChunk{Ref: ref, Err: err}
			return
		}
		defer resp.Body.Close()

		buf := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- StreamChunk{Ref: ref, Data: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if readErr == io.EOF {
				out <- StreamChunk{Ref: ref, Done: true}
				return
			}
			if readErr != nil {
				out <- StreamChunk{Ref: ref, Err: &errtax.NetworkError{Service: "http_pipeline", Endpoint: fullURL, Reason: readErr.Error()}}
				return
			}
		}
	}()

	return out
}

