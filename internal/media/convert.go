package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/sunshineplan/imgconv"

	// Register WebP decoding for incoming stickers
	_ "golang.org/x/image/webp"
)

// ToSticker converts an image into the 512x512 WebP canvas WhatsApp
// stickers use. The image is fitted with its aspect ratio intact and
// centered on a transparent background.
func ToSticker(data []byte) ([]byte, error) {
	mimeType := DetectMIME(data)
	if !IsConvertible(mimeType) {
		return nil, fmt.Errorf("cannot convert %s to a sticker", mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	fitted := imaging.Fit(img, StickerDimension, StickerDimension, imaging.Lanczos)
	canvas := imaging.New(StickerDimension, StickerDimension, color.NRGBA{})
	composed := imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := imgconv.Write(&buf, composed, &imgconv.FormatOption{Format: imgconv.WEBP}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// ToImage converts a WebP sticker back into a PNG.
func ToImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode sticker: %w", err)
	}

	var buf bytes.Buffer
	if err := imgconv.Write(&buf, img, &imgconv.FormatOption{Format: imgconv.PNG}); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Shrink resizes an image until it fits within the outbound upload
// limits. Images already within bounds come back untouched.
func Shrink(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= MaxImageDimension && bounds.Dy() <= MaxImageDimension && len(data) <= MaxImageBytes {
		return data, nil
	}

	for dim := MaxImageDimension; dim >= 400; dim -= 400 {
		resized := imaging.Fit(img, dim, dim, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imgconv.Write(&buf, resized, &imgconv.FormatOption{
			Format:       imgconv.JPEG,
			EncodeOption: []imgconv.EncodeOption{imgconv.Quality(80)},
		}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		if buf.Len() <= MaxImageBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("image could not be reduced below %dMB", MaxImageBytes/(1024*1024))
}
