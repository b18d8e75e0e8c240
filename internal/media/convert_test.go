package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestToStickerProducesWebpCanvas(t *testing.T) {
	sticker, err := ToSticker(pngBytes(t, 300, 100))
	if err != nil {
		t.Fatalf("ToSticker: %v", err)
	}
	if mime := DetectMIME(sticker); mime != "image/webp" {
		t.Fatalf("sticker mime = %s, want image/webp", mime)
	}

	img, _, err := image.Decode(bytes.NewReader(sticker))
	if err != nil {
		t.Fatalf("decode sticker: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != StickerDimension || b.Dy() != StickerDimension {
		t.Errorf("sticker canvas = %dx%d, want %dx%d", b.Dx(), b.Dy(), StickerDimension, StickerDimension)
	}
}

func TestToStickerRejectsNonImage(t *testing.T) {
	if _, err := ToSticker([]byte("definitely not an image")); err == nil {
		t.Fatal("expected conversion error for text payload")
	}
}

func TestToImageRoundtrip(t *testing.T) {
	sticker, err := ToSticker(pngBytes(t, 64, 64))
	if err != nil {
		t.Fatalf("ToSticker: %v", err)
	}
	out, err := ToImage(sticker)
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	if mime := DetectMIME(out); mime != "image/png" {
		t.Errorf("image mime = %s, want image/png", mime)
	}
}

func TestShrinkLeavesSmallImagesAlone(t *testing.T) {
	data := pngBytes(t, 100, 100)
	out, err := Shrink(data)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("small image was re-encoded")
	}
}

func TestShrinkResizesOversizedImages(t *testing.T) {
	out, err := Shrink(pngBytes(t, 3000, 1200))
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode shrunk image: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > MaxImageDimension || b.Dy() > MaxImageDimension {
		t.Errorf("shrunk image still %dx%d", b.Dx(), b.Dy())
	}
}
