package plugins_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/httppipeline/plugins"
)

var _ = Describe("Retry", func() {
	It("retries a retryable status then succeeds", func() {
		doer := &fakeDoer{Responses: []fakeResponse{
			{Resp: jsonResponse(503, `{}`)},
			{Resp: jsonResponse(200, `{}`)},
		}}
		retryPlugin := &plugins.Retry{MaxRetries: 3}
		retryPlugin.SetSleepForTest(func(time.Duration) {})
		c := httppipeline.New(httppipeline.Options{
			BaseURL: "https://x", Doer: doer,
			Plugins: []httppipeline.Plugin{retryPlugin},
		})

		resp, err := c.Do(context.Background(), httppipeline.NewRequest("GET", "/"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(len(doer.ReceivedReqs)).To(Equal(2))
	})

	It("gives up after max_retries and returns the last response", func() {
		doer := &fakeDoer{Responses: []fakeResponse{
			{Resp: jsonResponse(500, `{}`)},
			{Resp: jsonResponse(500, `{}`)},
			{Resp: jsonResponse(500, `{}`)},
		}}
		retryPlugin := &plugins.Retry{MaxRetries: 2}
		retryPlugin.SetSleepForTest(func(time.Duration) {})
		c := httppipeline.New(httppipeline.Options{
			BaseURL: "https://x", Doer: doer,
			Plugins: []httppipeline.Plugin{retryPlugin},
		})

		resp, err := c.Do(context.Background(), httppipeline.NewRequest("GET", "/"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(500))
		Expect(len(doer.ReceivedReqs)).To(Equal(3))
	})

	It("does not retry a non-retryable status", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: jsonResponse(404, `{}`)}}}
		retryPlugin := &plugins.Retry{MaxRetries: 3}
		retryPlugin.SetSleepForTest(func(time.Duration) {})
		c := httppipeline.New(httppipeline.Options{
			BaseURL: "https://x", Doer: doer,
			Plugins: []httppipeline.Plugin{retryPlugin},
		})

		resp, err := c.Do(context.Background(), httppipeline.NewRequest("GET", "/"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
		Expect(len(doer.ReceivedReqs)).To(Equal(1))
	})
})
