package scanning

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// billScanPrompt is the shared prompt used by all LLM providers for scanning bills
const billScanPrompt = `Extract the following details from this utility bill image:
Customer Name, Account Number, Due Date, Total Amount Due, Payable Within Due Date and Payable After Due Date.
If any information is not found, state 'N/A'.
Provide ONLY JSON in this format:
{"Customer Name": "[Name]", "Account Number": "[Number]", "Due Date": "[Date]", "Total Amount Due": "[Amount]", "Payable Within Due Date": "[Amount]", "Payable After Due Date": "[Amount]"}`

// pdfToPNG renders the first page of a PDF as a PNG image
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Bills are almost always a single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// heicToPNG decodes a HEIC/HEIF photo (common on iPhones) and re-encodes it as PNG
func heicToPNG(imageData []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIF brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// prepareForVision converts the formats vision APIs reject (PDF, HEIC) to PNG.
// Everything else is returned untouched so the encoded payload matches the file byte for byte.
// Returns the final data, its MIME type and whether a conversion happened.
func prepareForVision(data []byte, mimeType string) ([]byte, string, bool, error) {
	switch {
	case mimeType == "application/pdf":
		pngData, err := pdfToPNG(data)
		if err != nil {
			return nil, "", false, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, "image/png", true, nil
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		pngData, err := heicToPNG(data)
		if err != nil {
			return nil, "", false, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, "image/png", true, nil
	}
	return data, mimeType, false, nil
}
