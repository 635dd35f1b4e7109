// Package imaging decodes, downscales, and re-encodes images for
// profile pictures and previews.
package imaging

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
)

type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	GIF  Format = "gif"
)

// FormatForMIME maps a detected content type onto an encodable format.
// Anything unknown re-encodes as JPEG, which is what the original file
// most likely was.
func FormatForMIME(mime string) Format {
	switch mime {
	case "image/png":
		return PNG
	case "image/gif":
		return GIF
	default:
		return JPEG
	}
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Fit downscales img so it fits within maxW x maxH, preserving aspect
// ratio. Images already inside the box are returned unchanged; this
// never upscales.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// Encode writes img in the given format. JPEG gets the quality setting;
// PNG and GIF ignore it.
func Encode(w io.Writer, img image.Image, format Format, jpegQuality int) error {
	switch format {
	case PNG:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case GIF:
		if err := gif.Encode(w, img, nil); err != nil {
			return fmt.Errorf("encode gif: %w", err)
		}
	default:
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return nil
}
