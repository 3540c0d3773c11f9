package agent_test

import (
	"context"
	"errors"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/lager/v3/lagertest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/agent"
	"github.com/nimbus-oss/azurecreds/errtax"
)

var _ = Describe("Manager", func() {
	var clk *fakeclock.FakeClock
	var mgr *agent.Manager

	BeforeEach(func() {
		clk = fakeclock.NewFakeClock(time.Unix(1_700_000_000, 0))
		mgr = agent.NewManager(lagertest.NewTestLogger("test"), clk)
	})

	AfterEach(func() {
		mgr.Close()
	})

	It("fails to start without a name", func() {
		err := mgr.Start(context.Background(), agent.Options{Source: &stubSource{results: []stubResult{{tok: freshToken(3600, clk.Now().Unix())}}}})
		var cfgErr *errtax.ConfigurationError
		Expect(err).To(BeAssignableToTypeOf(cfgErr))
	})

	It("fails to start without a source", func() {
		err := mgr.Start(context.Background(), agent.Options{Name: "vault"})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an invalid prefetch value", func() {
		err := mgr.Start(context.Background(), agent.Options{
			Name:     "vault",
			Source:   &stubSource{results: []stubResult{{tok: freshToken(3600, clk.Now().Unix())}}},
			Prefetch: "nonsense",
		})
		Expect(err.(*errtax.ConfigurationError).Type).To(Equal("invalid_option"))
	})

	It("prefetches synchronously and serves fetch from the registry", func() {
		src := &stubSource{results: []stubResult{{tok: freshToken(3600, clk.Now().Unix())}}}
		err := mgr.Start(context.Background(), agent.Options{Name: "vault", Source: src, Prefetch: agent.PrefetchSync})
		Expect(err).NotTo(HaveOccurred())

		tok, err := mgr.Fetch(context.Background(), "vault")
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("tok"))
		Expect(src.callCount()).To(Equal(1))
	})

	It("async prefetch starts immediately without blocking on the first fetch", func() {
		src := &stubSource{results: []stubResult{{tok: freshToken(3600, clk.Now().Unix())}}}
		err := mgr.Start(context.Background(), agent.Options{Name: "vault", Source: src, Prefetch: agent.PrefetchAsync})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() bool {
			_, ok := mgr.Registry().Lookup("vault")
			return ok
		}).Should(BeTrue())
	})

	It("returns TokenServerError for an unknown credential name", func() {
		_, err := mgr.Fetch(context.Background(), "does-not-exist")
		var tsErr *errtax.TokenServerError
		Expect(err).To(BeAssignableToTypeOf(tsErr))
		Expect(err.(*errtax.TokenServerError).Type).To(Equal("fetch_failed"))
	})

	It("falls through to a synchronous acquisition when initial prefetch fails", func() {
		src := &stubSource{results: []stubResult{
			{err: errors.New("unavailable")},
			{tok: freshToken(3600, clk.Now().Unix())},
		}}
		err := mgr.Start(context.Background(), agent.Options{Name: "vault", Source: src, Prefetch: agent.PrefetchSync})
		Expect(err).NotTo(HaveOccurred())

		tok, err := mgr.Fetch(context.Background(), "vault")
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.AccessToken).To(Equal("tok"))
	})

	It("reports health per registered credential", func() {
		src := &stubSource{results: []stubResult{{tok: freshToken(3600, clk.Now().Unix())}}}
		Expect(mgr.Start(context.Background(), agent.Options{Name: "vault", Source: src})).To(Succeed())

		health := mgr.Health()
		Expect(health).To(HaveKeyWithValue("vault", true))
	})

	It("MustFetch panics on error", func() {
		Expect(func() {
			mgr.MustFetch(context.Background(), "missing")
		}).To(Panic())
	})
})
