package plugins_test

import (
	"context"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/httppipeline/plugins"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

var _ = Describe("RequestId", func() {
	It("sets a lowercase version-4 UUID", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: jsonResponse(200, `{}`)}}}
		c := httppipeline.New(httppipeline.Options{
			BaseURL: "https://x", Doer: doer,
			Plugins: []httppipeline.Plugin{plugins.RequestId{}},
		})
		_, err := c.Do(context.Background(), httppipeline.NewRequest("GET", "/"))
		Expect(err).NotTo(HaveOccurred())
		Expect(doer.ReceivedReqs[0].Header.Get("x-ms-client-request-id")).To(MatchRegexp(uuidPattern.String()))
	})

	It("lets an explicit request_id option override the generated UUID", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: jsonResponse(200, `{}`)}}}
		c := httppipeline.New(httppipeline.Options{
			BaseURL: "https://x", Doer: doer,
			Plugins: []httppipeline.Plugin{plugins.RequestId{}},
		})
		req := httppipeline.NewRequest("GET", "/")
		req.Options["request_id"] = "MY-FIXED-ID"
		_, err := c.Do(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(doer.ReceivedReqs[0].Header.Get("x-ms-client-request-id")).To(Equal("my-fixed-id"))
	})
})
