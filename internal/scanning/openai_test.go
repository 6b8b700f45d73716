package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		img     *Image
		apiKey  string
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		scanner, newErr = NewOpenAI(OpenAIConfig{BaseURL: server.URL() + "/v1", Timeout: 5 * time.Second})
		Expect(newErr).NotTo(HaveOccurred())
		img = &Image{Path: "bill.png", Data: []byte("fake png"), MIMEType: "image/png"}
		apiKey = "sk-test"
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = scanner.ScanBill(context.Background(), img, apiKey)
	})

	When("the API answers", func() {
		var captured openAIChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []map[string]any{
						{"message": map[string]any{"content": `{"Customer Name":"A"}`}},
					},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the message content", func() {
			Expect(text).To(Equal(`{"Customer Name":"A"}`))
		})

		It("should make exactly one call", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})

		It("should send the prompt and the inline image", func() {
			Expect(captured.Model).To(Equal("gpt-4o"))
			Expect(captured.MaxTokens).To(Equal(300))
			Expect(captured.Messages).To(HaveLen(1))
			parts := captured.Messages[0].Content
			Expect(parts).To(HaveLen(2))
			Expect(parts[0].Text).To(ContainSubstring("Payable After Due Date"))
			Expect(parts[1].ImageURL.URL).To(Equal("data:image/png;base64,ZmFrZSBwbmc="))
		})
	})

	When("the API key is empty", func() {
		BeforeEach(func() {
			apiKey = "  "
		})

		It("returns the missing credentials error", func() {
			Expect(err).To(MatchError(ErrMissingCredentials))
		})

		It("should not call the API", func() {
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the API returns a non-2xx status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":"bad key"}`))
		})

		It("returns a transport error with the status", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(transportErr.Body).To(ContainSubstring("bad key"))
		})
	})

	When("the API returns no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
		})

		It("returns a transport error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("no choices"))
		})
	})

	When("the server is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a transport error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(BeZero())
		})
	})
})
