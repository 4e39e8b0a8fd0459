package compose

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// MaxImageSize bounds an attached image
const MaxImageSize = 20 * 1024 * 1024 // 20MB

// DetectMIMEType guesses the media type of a file, by extension first and
// then by sniffing its leading bytes
func DetectMIMEType(path string, data []byte) string {
	if ext := filepath.Ext(path); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return t
		}
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}

// IsImageType reports whether a MIME type names an image
func IsImageType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}
