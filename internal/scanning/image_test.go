package scanning

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadImage", func() {
	var (
		tmpDir string
		path   string
		img    *Image
		err    error
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	JustBeforeEach(func() {
		img, err = LoadImage(path)
	})

	When("the file is a PNG", func() {
		var pngData []byte

		BeforeEach(func() {
			src := image.NewRGBA(image.Rect(0, 0, 2, 2))
			src.Set(0, 0, color.RGBA{R: 255, A: 255})
			var buf bytes.Buffer
			Expect(png.Encode(&buf, src)).To(Succeed())
			pngData = buf.Bytes()
			path = filepath.Join(tmpDir, "bill.png")
			Expect(os.WriteFile(path, pngData, 0644)).To(Succeed())
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep the bytes unchanged", func() {
			Expect(img.Data).To(Equal(pngData))
			Expect(img.Converted).To(BeFalse())
		})

		It("should encode the bytes as base64", func() {
			Expect(img.Base64()).To(Equal(base64.StdEncoding.EncodeToString(pngData)))
		})

		It("should build a PNG data URL", func() {
			Expect(img.MIMEType).To(Equal("image/png"))
			Expect(img.DataURL()).To(HavePrefix("data:image/png;base64,"))
		})
	})

	When("the file has a JPEG extension", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "bill.JPG")
			Expect(os.WriteFile(path, []byte("not really a jpeg"), 0644)).To(Succeed())
		})

		It("should pass the bytes through with the JPEG type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.MIMEType).To(Equal("image/jpeg"))
			Expect(string(img.Data)).To(Equal("not really a jpeg"))
		})
	})

	When("the file has no extension", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "scan")
			Expect(os.WriteFile(path, []byte("GIF89a......"), 0644)).To(Succeed())
		})

		It("should sniff the content type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(img.MIMEType).To(Equal("image/gif"))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "missing.png")
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("reading image"))
			Expect(errors.Is(err, fs.ErrNotExist)).To(BeTrue())
		})
	})
})
