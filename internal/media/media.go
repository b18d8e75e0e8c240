// Package media converts downloaded WhatsApp media between formats.
// It turns images and stills into sticker-ready WebP, unpacks stickers
// back into plain images, and shrinks oversized pictures before upload.
package media

import (
	"github.com/gabriel-vasile/mimetype"
)

const (
	// StickerDimension is the canvas WhatsApp expects for stickers.
	StickerDimension = 512

	// MaxImageBytes caps outbound image uploads.
	MaxImageBytes = 5 * 1024 * 1024

	// MaxImageDimension caps outbound image width and height.
	MaxImageDimension = 2000
)

// Convertible image MIME types.
var convertibleMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// DetectMIME returns the MIME type from magic bytes, never the extension.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsConvertible reports whether the MIME type can be decoded for
// conversion.
func IsConvertible(mimeType string) bool {
	return convertibleMIMETypes[mimeType]
}
