package imaging

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// FormatKeep instructs the encoder to keep each photo's source format.
const FormatKeep = "keep"

const (
	DefaultJPEGQuality = 90
)

var formats = map[string]imaging.Format{
	"jpeg": imaging.JPEG,
	"png":  imaging.PNG,
	"gif":  imaging.GIF,
	"tiff": imaging.TIFF,
	"bmp":  imaging.BMP,
}

var extensionFormats = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".tif":  "tiff",
	".tiff": "tiff",
	".bmp":  "bmp",
}

// IsSupportedKey reports whether an object key has a decodable image extension.
func IsSupportedKey(key string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(key))]
	return ok
}

// FormatForKey maps an object key's extension to its format name.
func FormatForKey(key string) (string, error) {
	format, ok := extensionFormats[strings.ToLower(filepath.Ext(key))]
	if !ok {
		return "", fmt.Errorf("unsupported image extension %q", filepath.Ext(key))
	}
	return format, nil
}

// ValidateFormat checks a job's requested output format.
func ValidateFormat(format string) error {
	if format == FormatKeep {
		return nil
	}
	if _, ok := formats[format]; !ok {
		return fmt.Errorf("unsupported output format %q", format)
	}
	return nil
}

// Extension returns the canonical file extension for a format name.
func Extension(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

// Decode reads an image and reports its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("error decoding image: %w", err)
	}
	return img, format, nil
}

// Encode writes img in the given format. Quality only affects JPEG; zero means
// DefaultJPEGQuality.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	f, ok := formats[format]
	if !ok {
		return fmt.Errorf("unsupported output format %q", format)
	}

	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	if err := imaging.Encode(w, img, f, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("error encoding image as %s: %w", format, err)
	}

	return nil
}
