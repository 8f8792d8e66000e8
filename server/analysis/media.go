package analysis

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/scenesolver/scenesolver/pkg/nn"
)

var ErrUnsupportedMediaType = errors.New("Unsupported media type")
var ErrEmptyMedia = errors.New("No media provided")

type MediaKind int

const (
	MediaUnknown MediaKind = iota
	MediaImage
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// Media is either an ImageMedia or a VideoMedia
type Media interface {
	Kind() MediaKind
}

// ImageMedia is a single encoded image, held in memory
type ImageMedia struct {
	Image nn.Image
}

// VideoMedia is a video file on disk
type VideoMedia struct {
	Filename    string
	ContentType string
}

func (m *ImageMedia) Kind() MediaKind { return MediaImage }
func (m *VideoMedia) Kind() MediaKind { return MediaVideo }

// KindOf decides how to process a file, from its mime type.
// If contentType is empty or generic, we fall back to the filename extension.
func KindOf(contentType, filename string) (MediaKind, string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			ct = parsed
		}
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaImage, ct, nil
	case strings.HasPrefix(ct, "video/"):
		return MediaVideo, ct, nil
	}
	if ct == "" {
		ct = "unknown"
	}
	return MediaUnknown, ct, ErrUnsupportedMediaType
}
