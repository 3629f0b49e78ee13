package pipeline

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MediaType is the coarse kind of a media file.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaUnknown MediaType = "unknown"
)

var extensionTypes = map[string]MediaType{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".bmp":  MediaImage,
	".tif":  MediaImage,
	".tiff": MediaImage,
	".webp": MediaImage,
	".heic": MediaImage,
	".mp4":  MediaVideo,
	".m4v":  MediaVideo,
	".mov":  MediaVideo,
	".mkv":  MediaVideo,
	".webm": MediaVideo,
	".avi":  MediaVideo,
	".3gp":  MediaVideo,
}

// IsMediaFile reports whether path has a recognized image or video
// extension.
func IsMediaFile(path string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DetectMediaType sniffs the first bytes of the file and falls back to the
// extension when the content is not recognized.
func DetectMediaType(path string) MediaType {
	if t := sniff(path); t != MediaUnknown {
		return t
	}
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return MediaUnknown
}

func sniff(path string) MediaType {
	f, err := os.Open(path)
	if err != nil {
		return MediaUnknown
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return MediaUnknown
	}

	contentType := http.DetectContentType(buf[:n])
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo
	}
	return MediaUnknown
}
