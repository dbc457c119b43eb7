// Package media defines the media kinds the service uniqueizes and the
// filename conventions around them.
package media

import (
	"path/filepath"
	"strings"

	"helvetia/internal/pkg/errors"
)

// Kind is the class of media a job processes.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// imageExts are the input extensions treated as images.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// videoExts are the input extensions treated as videos.
var videoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
}

// containerExts are the video containers we emit as-is. Anything else
// is rewrapped as mp4.
var containerExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	default:
		return "", errors.ValidationField("media_kind", "must be image or video")
	}
}

// DetectKind guesses the media kind from a filename extension.
func DetectKind(filename string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return KindImage, true
	case videoExts[ext]:
		return KindVideo, true
	default:
		return "", false
	}
}

// OutputExt picks the extension for a processed file. Images keep their
// input extension, videos keep known containers and fall back to mp4.
func OutputExt(kind Kind, inputName string) string {
	ext := strings.ToLower(filepath.Ext(inputName))
	switch kind {
	case KindVideo:
		if containerExts[ext] {
			return ext
		}
		return ".mp4"
	default:
		if ext == "" {
			return ".jpg"
		}
		return ext
	}
}
