package token_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbus-oss/azurecreds/token"
)

var _ = Describe("Token", func() {
	It("rejects an empty access token", func() {
		_, err := token.New("", "Bearer", "scope", 100, int64(100))
		Expect(err).To(HaveOccurred())
	})

	It("rejects a negative expiry", func() {
		_, err := token.New("at", "Bearer", "scope", -1, int64(100))
		Expect(err).To(HaveOccurred())
	})

	It("defaults token_type to Bearer", func() {
		tok, err := token.New("at", "", "scope", 100, int64(100))
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.TokenType).To(Equal("Bearer"))
	})

	It("never renders the access token in String()", func() {
		tok, _ := token.New("super-secret", "Bearer", "scope", 100, int64(100))
		Expect(tok.String()).NotTo(ContainSubstring("super-secret"))
	})

	Describe("ExpiresWithin", func() {
		It("is true once now+within reaches expires_at", func() {
			now := time.Unix(1000, 0)
			tok, _ := token.New("at", "Bearer", "", 1010, int64(10))
			Expect(tok.ExpiresWithin(now, 10*time.Second)).To(BeTrue())
			Expect(tok.ExpiresWithin(now, 5*time.Second)).To(BeFalse())
		})
	})
})

var _ = Describe("Credential values", func() {
	Describe("ApiKey", func() {
		It("requires a non-empty key", func() {
			_, err := token.NewApiKey("")
			Expect(err).To(HaveOccurred())
		})

		It("update returns a new value without mutating the original", func() {
			original, err := token.NewApiKey("k1")
			Expect(err).NotTo(HaveOccurred())
			updated, err := original.Update("k2")
			Expect(err).NotTo(HaveOccurred())
			Expect(original.Key()).To(Equal("k1"))
			Expect(updated.Key()).To(Equal("k2"))
		})
	})

	Describe("Sas", func() {
		It("normalizes a leading '?' and surrounding whitespace", func() {
			a, err := token.NewSas("?s")
			Expect(err).NotTo(HaveOccurred())
			b, err := token.NewSas("s")
			Expect(err).NotTo(HaveOccurred())
			c, err := token.NewSas("  s  ")
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Equal(b)).To(BeTrue())
			Expect(b.Equal(c)).To(BeTrue())
			Expect(a.Signature()).To(Equal("s"))
		})

		It("rejects a signature that is empty after normalization", func() {
			_, err := token.NewSas("   ?   ")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NamedKey", func() {
		It("requires both name and a valid base64 key", func() {
			_, err := token.NewNamedKey("", "a2V5")
			Expect(err).To(HaveOccurred())

			_, err = token.NewNamedKey("account", "not-base64!!")
			Expect(err).To(HaveOccurred())

			nk, err := token.NewNamedKey("account", "a2V5")
			Expect(err).NotTo(HaveOccurred())
			Expect(nk.Name()).To(Equal("account"))
		})
	})
})
