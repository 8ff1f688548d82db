package pipeline

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"otherly/backend/go/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// NormalizedImage is a PNG whose dimensions were read back from its own bytes.
type NormalizedImage struct {
	Bytes  []byte
	Width  int
	Height int
}

// ImageNormalizer converts OCR page images to display-sized PNGs.
type ImageNormalizer struct {
	MaxWidth int
}

var decoders = map[string]func(io.Reader) (image.Image, error){
	"image/png":  png.Decode,
	"image/jpeg": jpeg.Decode,
	"image/gif":  gif.Decode,
	"image/bmp":  bmp.Decode,
	"image/tiff": tiff.Decode,
	"image/webp": webp.Decode,
}

// decoderFor prefers the sniffed encoding and falls back to the declared one.
func decoderFor(data []byte, declared string) (string, func(io.Reader) (image.Image, error)) {
	detected := mimetype.Detect(data).String()
	if dec, ok := decoders[detected]; ok {
		return detected, dec
	}
	if dec, ok := decoders[declared]; ok {
		return declared, dec
	}
	return detected, nil
}

// Normalize returns nil, nil when img carries no bytes. Images wider than
// MaxWidth are scaled down proportionally; smaller ones keep their size.
func (n ImageNormalizer) Normalize(img models.PageImage) (*NormalizedImage, error) {
	if len(img.Bytes) == 0 {
		return nil, nil
	}

	format, decode := decoderFor(img.Bytes, img.MediaType)
	if decode == nil {
		return nil, Errorf(KindMalformedSource, "image.decode", "unsupported image encoding %q", format)
	}
	src, err := decode(bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, &Error{Kind: KindMalformedSource, Op: "image.decode", Message: "cannot decode " + format, Err: err}
	}

	out := img.Bytes
	if scaled, ok := n.downscale(src); ok || format != models.MediaTypePNG {
		if ok {
			src = scaled
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, src); err != nil {
			return nil, &Error{Kind: KindMalformedSource, Op: "image.encode", Message: "cannot encode PNG", Err: err}
		}
		out = buf.Bytes()
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return nil, &Error{Kind: KindMalformedSource, Op: "image.encode", Message: "re-encoded image unreadable", Err: err}
	}
	return &NormalizedImage{Bytes: out, Width: cfg.Width, Height: cfg.Height}, nil
}

func (n ImageNormalizer) downscale(src image.Image) (image.Image, bool) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if n.MaxWidth <= 0 || w <= n.MaxWidth || w == 0 {
		return nil, false
	}

	nh := int(math.Round(float64(h) * float64(n.MaxWidth) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, n.MaxWidth, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, true
}
