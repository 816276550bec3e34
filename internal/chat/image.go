package chat

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// validImageDataURL reports whether raw is a base64 data URL whose decoded
// payload actually sniffs as an image. The declared media type in the URL is
// not trusted; the bytes are. Attachments that fail the check are stripped
// from the message before it is stored or relayed, since every member's UI
// will inline the blob verbatim.
func validImageDataURL(raw string) bool {
	if !strings.HasPrefix(raw, "data:") {
		return false
	}
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return false
	}
	meta, payload := raw[len("data:"):comma], raw[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(decoded) == 0 {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(decoded).String(), "image/")
}
