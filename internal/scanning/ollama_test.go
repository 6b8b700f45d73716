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

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		img     *Image
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		scanner, newErr = NewOllama(server.URL(), "llava", 5*time.Second)
		Expect(newErr).NotTo(HaveOccurred())
		img = &Image{Path: "bill.jpg", Data: []byte("jpeg bytes"), MIMEType: "image/jpeg"}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = scanner.ScanBill(context.Background(), img, "")
	})

	It("should not require an API key", func() {
		Expect(scanner.RequiresKey()).To(BeFalse())
	})

	When("the server answers", func() {
		var captured ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &captured)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": `{"Customer Name":"A"}`},
					"done":    true,
				}),
			))
		})

		It("should return the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"Customer Name":"A"}`))
		})

		It("should attach the base64 image to the user message", func() {
			Expect(captured.Model).To(Equal("llava"))
			Expect(captured.Stream).To(BeFalse())
			Expect(captured.Messages).To(HaveLen(2))
			Expect(captured.Messages[1].Images).To(ConsistOf(img.Base64()))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a transport error", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})
})
