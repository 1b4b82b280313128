// Package covers prepares book cover images for publishing. Relay events
// carry covers inline, so images are downscaled and recompressed to a small
// fixed budget, with a BlurHash placeholder for instant rendering.
package covers

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // Register WebP decoder

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

const (
	// Target bounding box. Covers keep their aspect ratio within it.
	targetWidth  = 128
	targetHeight = 192

	// MaxPublishedBytes is the hard budget for an inline cover. Events carry
	// the cover base64-encoded, so oversized images bloat every sync.
	MaxPublishedBytes = 20 << 10
)

// jpegQualities are tried in order until the encoded cover fits the budget.
var jpegQualities = []int{80, 65, 50, 35, 25}

// Processed is the publish-ready form of a cover image.
type Processed struct {
	Image   []byte // JPEG within MaxPublishedBytes
	Preview string // BlurHash placeholder
}

// Process decodes, downscales, and recompresses a cover image.
func Process(data []byte) (*Processed, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domainerrors.Validation("cover image undecodable").WithCause(err)
	}

	thumb := scaleToFit(img, targetWidth, targetHeight)

	encoded, err := encodeWithinBudget(thumb)
	if err != nil {
		return nil, err
	}

	// 4 horizontal, 3 vertical components - sweet spot for book covers
	hash, err := blurhash.Encode(4, 3, thumb)
	if err != nil {
		return nil, fmt.Errorf("encode blurhash: %w", err)
	}

	return &Processed{Image: encoded, Preview: hash}, nil
}

// Preview computes just the BlurHash placeholder for an already-encoded
// cover. Best effort: an undecodable image yields an empty string.
func Preview(data []byte) string {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	hash, err := blurhash.Encode(4, 3, scaleToFit(img, targetWidth, targetHeight))
	if err != nil {
		return ""
	}
	return hash
}

func encodeWithinBudget(img image.Image) ([]byte, error) {
	for {
		for _, q := range jpegQualities {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
				return nil, fmt.Errorf("encode cover: %w", err)
			}
			if buf.Len() <= MaxPublishedBytes {
				return buf.Bytes(), nil
			}
		}

		// Even the lowest quality overflows. Halve the dimensions and retry.
		bounds := img.Bounds()
		w, h := bounds.Dx()/2, bounds.Dy()/2
		if w < 16 || h < 16 {
			return nil, domainerrors.Validation("cover image cannot be compressed within the publish budget")
		}
		img = scaleToFit(img, w, h)
	}
}

// scaleToFit downsizes img to fit within maxW x maxH, preserving aspect
// ratio. Nearest-neighbor sampling is fast and good enough at thumbnail
// sizes.
func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= maxW && srcHeight <= maxH {
		return img
	}

	dstWidth := maxW
	dstHeight := (srcHeight * maxW) / srcWidth
	if dstHeight > maxH {
		dstHeight = maxH
		dstWidth = (srcWidth * maxH) / srcHeight
	}
	if dstWidth < 1 {
		dstWidth = 1
	}
	if dstHeight < 1 {
		dstHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return dst
}
