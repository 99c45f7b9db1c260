package media

import (
	"bytes"
	"errors"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatSVG  Format = "svg"
)

var ErrUnsupportedFormat = errors.New("unsupported avatar format")

// Kind is a detected avatar format and its canonical content type.
type Kind struct {
	Format Format
	MIME   string
}

// SniffLen is how many leading bytes Detect needs.
const SniffLen = 512

// Detect identifies an avatar image from its leading bytes. Only formats
// browsers render in an <img> tag are accepted.
func Detect(head []byte) (Kind, error) {
	switch {
	case len(head) == 0:
		return Kind{}, ErrUnsupportedFormat
	case len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff:
		return Kind{Format: FormatJPEG, MIME: "image/jpeg"}, nil
	case bytes.HasPrefix(head, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}):
		return Kind{Format: FormatPNG, MIME: "image/png"}, nil
	case bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a")):
		return Kind{Format: FormatGIF, MIME: "image/gif"}, nil
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return Kind{Format: FormatWEBP, MIME: "image/webp"}, nil
	case looksLikeSVG(head):
		return Kind{Format: FormatSVG, MIME: "image/svg+xml"}, nil
	}
	return Kind{}, ErrUnsupportedFormat
}

func looksLikeSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	return strings.HasPrefix(trimmed, "<?xml") && strings.Contains(strings.ToLower(trimmed), "<svg")
}

// DeclaredType returns the media type of a Content-Type value without
// parameters.
func DeclaredType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
