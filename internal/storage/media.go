package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MediaKind is a coarse content family accepted for an upload slot.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ErrUnsupportedMedia is returned when an upload is empty or of a disallowed type.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Media is the sniffed type of an upload.
type Media struct {
	Kind        MediaKind
	ContentType string
	Extension   string
}

// Sniff detects the content type from the bytes themselves; client-declared types are ignored.
func Sniff(data []byte, allowed ...MediaKind) (*Media, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedMedia)
	}
	detected := mimetype.Detect(data)
	contentType := strings.SplitN(detected.String(), ";", 2)[0]
	kind := MediaKind(strings.SplitN(contentType, "/", 2)[0])

	if len(allowed) > 0 {
		permitted := false
		for _, candidate := range allowed {
			if candidate == kind {
				permitted = true
				break
			}
		}
		if !permitted {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, contentType)
		}
	}
	return &Media{Kind: kind, ContentType: contentType, Extension: detected.Extension()}, nil
}
