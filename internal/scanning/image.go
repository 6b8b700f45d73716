package scanning

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Image is a bill image ready to be embedded in an inference request
type Image struct {
	Path      string
	Data      []byte
	MIMEType  string
	Converted bool // true when Data was rendered to PNG from PDF/HEIC
}

// Base64 returns the standard base64 encoding of the image data
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as an inline data URL
func (i *Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// FileLoader loads bill images from the local filesystem
type FileLoader struct{}

// Load reads and encodes the image at path
func (FileLoader) Load(path string) (*Image, error) {
	return LoadImage(path)
}

// LoadImage reads the file at path and prepares it for a vision request
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	mimeType := detectMimeType(path, data)
	finalData, finalType, converted, err := prepareForVision(data, mimeType)
	if err != nil {
		return nil, err
	}

	return &Image{
		Path:      path,
		Data:      finalData,
		MIMEType:  finalType,
		Converted: converted,
	}, nil
}

// detectMimeType picks a MIME type from the extension, then from the content
func detectMimeType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".bmp":
		return "image/bmp"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return strings.SplitN(mt, ";", 2)[0]
	}

	sniffed := http.DetectContentType(data)
	if sniffed == "application/octet-stream" && isHEICFormat(data) {
		return "image/heic"
	}
	return strings.SplitN(sniffed, ";", 2)[0]
}
