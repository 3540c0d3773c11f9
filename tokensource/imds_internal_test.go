package tokensource

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"code.cloudfoundry.org/lager/v3/lagertest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/errtax"
)

type queuedDoer struct {
	responses []*http.Response
	errs      []error
	reqs      []*http.Request
	call      int
}

func (q *queuedDoer) Do(req *http.Request) (*http.Response, error) {
	q.reqs = append(q.reqs, req)
	idx := q.call
	q.call++
	var err error
	if idx < len(q.errs) {
		err = q.errs[idx]
	}
	var resp *http.Response
	if idx < len(q.responses) {
		resp = q.responses[idx]
	}
	return resp, err
}

func body(s string) io.ReadCloser { return io.NopCloser(bytes.NewBufferString(s)) }

var _ = Describe("imdsProvider", func() {
	var doer *queuedDoer
	var provider *imdsProvider

	BeforeEach(func() {
		doer = &queuedDoer{}
		provider = newIMDSProvider(doer, lagertest.NewTestLogger("test"))
		provider.sleep = func(time.Duration) {}
	})

	It("includes Metadata header and api-version", func() {
		doer.responses = []*http.Response{
			{StatusCode: 200, Body: body(`{"access_token":"tok","expires_in":"3600","resource":"https://vault.azure.net"}`), Header: http.Header{}},
		}
		tok, err := provider.fetch(context.Background(), "https://vault.azure.net", "", "", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("tok"))
		Expect(doer.reqs[0].Header.Get("Metadata")).To(Equal("true"))
		Expect(doer.reqs[0].URL.Query().Get("api-version")).To(Equal("2019-08-01"))
	})

	It("prefers client_id over object_id over mi_res_id", func() {
		doer.responses = []*http.Response{
			{StatusCode: 200, Body: body(`{"access_token":"tok","expires_in":"3600"}`), Header: http.Header{}},
		}
		_, err := provider.fetch(context.Background(), "r", "client-1", "obj-1", "res-1", 0)
		Expect(err).NotTo(HaveOccurred())
		q := doer.reqs[0].URL.Query()
		Expect(q.Get("client_id")).To(Equal("client-1"))
		Expect(q.Get("object_id")).To(Equal(""))
		Expect(q.Get("mi_res_id")).To(Equal(""))
	})

	It("honors a parseable Retry-After header on 429 then succeeds", func() {
		doer.responses = []*http.Response{
			{StatusCode: 429, Body: body(`{}`), Header: http.Header{"Retry-After": []string{"1"}}},
			{StatusCode: 200, Body: body(`{"access_token":"tok","expires_in":"60"}`), Header: http.Header{}},
		}
		tok, err := provider.fetch(context.Background(), "r", "", "", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("tok"))
		Expect(len(doer.reqs)).To(Equal(2))
	})

	It("falls back to exponential backoff when Retry-After is absent on 503", func() {
		doer.responses = []*http.Response{
			{StatusCode: 503, Body: body(`{}`), Header: http.Header{}},
			{StatusCode: 200, Body: body(`{"access_token":"tok","expires_in":"60"}`), Header: http.Header{}},
		}
		tok, err := provider.fetch(context.Background(), "r", "", "", "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("tok"))
	})

	It("fails fast on a non-retryable 4xx with an error body", func() {
		doer.responses = []*http.Response{
			{StatusCode: 400, Body: body(`{"error":"invalid_request","error_description":"bad resource"}`), Header: http.Header{}},
		}
		_, err := provider.fetch(context.Background(), "r", "", "", "", 0)
		var miErr *errtax.ManagedIdentityError
		Expect(err).To(BeAssignableToTypeOf(miErr))
		Expect(err.(*errtax.ManagedIdentityError).Type).To(Equal("provider_error"))
		Expect(len(doer.reqs)).To(Equal(1))
	})

	It("exhausts retries after 5 attempts on repeated 503s", func() {
		doer.responses = make([]*http.Response, 0, 5)
		for i := 0; i < 5; i++ {
			doer.responses = append(doer.responses, &http.Response{StatusCode: 503, Body: body(`{}`), Header: http.Header{}})
		}
		_, err := provider.fetch(context.Background(), "r", "", "", "", 0)
		Expect(err).To(HaveOccurred())
		Expect(len(doer.reqs)).To(Equal(5))
	})

	It("applies the same capped exponential backoff formula directly", func() {
		Expect(provider.backoff(0, "")).To(Equal(500 * time.Millisecond))
		Expect(provider.backoff(1, "")).To(Equal(1000 * time.Millisecond))
		Expect(provider.backoff(4, "")).To(Equal(5000 * time.Millisecond))
		Expect(provider.backoff(10, "")).To(Equal(5000 * time.Millisecond))
		Expect(provider.backoff(0, "2")).To(Equal(2 * time.Second))
	})
})
