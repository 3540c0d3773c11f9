package httppipeline_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/httppipeline"
)

var _ = Describe("Client streaming modes", func() {
	It("writes the body to destPath atomically", func() {
		dir := GinkgoT().TempDir()
		dest := filepath.Join(dir, "out.bin")
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: plainResponse(200, "hello streaming world")}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		status, err := c.DoStreamFile(context.Background(), httppipeline.NewRequest("GET", "/"), dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))

		contents, readErr := os.ReadFile(dest)
		Expect(readErr).NotTo(HaveOccurred())
		Expect(string(contents)).To(Equal("hello streaming world"))

		entries, _ := os.ReadDir(dir)
		Expect(entries).To(HaveLen(1))
	})

	It("leaves no partial file behind when the transport fails", func() {
		dir := GinkgoT().TempDir()
		dest := filepath.Join(dir, "out.bin")
		doer := &fakeDoer{Responses: []fakeResponse{{Err: errTransport}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		_, err := c.DoStreamFile(context.Background(), httppipeline.NewRequest("GET", "/"), dest)
		Expect(err).To(HaveOccurred())

		_, statErr := os.Stat(dest)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
		entries, _ := os.ReadDir(dir)
		Expect(entries).To(HaveLen(0))
	})

	It("folds the body through a reducer", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: plainResponse(200, "abcdef")}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		status, final, err := c.DoStreamReduce(context.Background(), httppipeline.NewRequest("GET", "/"), 0,
			func(chunk []byte, acc any) (any, bool) {
				return acc.(int) + len(chunk), false
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))
		Expect(final).To(Equal(6))
	})

	It("halts the reducer early when asked", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: plainResponse(200, "abcdef")}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		_, final, err := c.DoStreamReduce(context.Background(), httppipeline.NewRequest("GET", "/"), "",
			func(chunk []byte, acc any) (any, bool) {
				return acc.(string) + string(chunk), true
			})
		Expect(err).NotTo(HaveOccurred())
		Expect(final).To(Equal("abcdef"))
	})

	It("delivers chunks on a channel terminated by a done message", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Resp: plainResponse(200, "streamed")}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		ch := c.DoStreamChannel(context.Background(), httppipeline.NewRequest("GET", "/"), "ref-1")
		var collected []byte
		var sawDone bool
		for msg := range ch {
			Expect(msg.Ref).To(Equal("ref-1"))
			Expect(msg.Err).NotTo(HaveOccurred())
			if msg.Done {
				sawDone = true
				continue
			}
			collected = append(collected, msg.Data...)
		}
		Expect(sawDone).To(BeTrue())
		Expect(string(collected)).To(Equal("streamed"))
	})

	It("delivers a terminal error message on transport failure", func() {
		doer := &fakeDoer{Responses: []fakeResponse{{Err: errTransport}}}
		c := httppipeline.New(httppipeline.Options{BaseURL: "https://x", Doer: doer})

		ch := c.DoStreamChannel(context.Background(), httppipeline.NewRequest("GET", "/"), "ref-2")
		msg := <-ch
		Expect(msg.Err).To(HaveOccurred())
		_, more := <-ch
		Expect(more).To(BeFalse())
	})
})
