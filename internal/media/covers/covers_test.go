package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestImage renders a simple gradient so JPEG has something to compress.
func encodeTestImage(t *testing.T, width, height int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func encodePNG(buf *bytes.Buffer, img image.Image) error {
	return png.Encode(buf, img)
}

func encodeJPEG(buf *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
}

func TestProcess(t *testing.T) {
	data := encodeTestImage(t, 600, 900, encodePNG)

	processed, err := Process(data)
	require.NoError(t, err)

	assert.NotEmpty(t, processed.Preview)
	assert.LessOrEqual(t, len(processed.Image), MaxPublishedBytes)

	// The output is a decodable JPEG scaled into the bounding box.
	img, format, err := image.Decode(bytes.NewReader(processed.Image))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), 128)
	assert.LessOrEqual(t, img.Bounds().Dy(), 192)
}

func TestProcess_SmallImageKeepsSize(t *testing.T) {
	data := encodeTestImage(t, 100, 150, encodeJPEG)

	processed, err := Process(data)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(processed.Image))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestProcess_Undecodable(t *testing.T) {
	_, err := Process([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	data := encodeTestImage(t, 200, 300, encodeJPEG)

	hash := Preview(data)
	assert.NotEmpty(t, hash)

	assert.Empty(t, Preview([]byte("garbage")), "best effort, never an error")
	assert.Empty(t, Preview(nil))
}

func TestScaleToFit(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	scaled := scaleToFit(wide, 128, 192)
	assert.Equal(t, 128, scaled.Bounds().Dx())
	assert.Equal(t, 64, scaled.Bounds().Dy())

	tall := image.NewRGBA(image.Rect(0, 0, 500, 1000))
	scaled = scaleToFit(tall, 128, 192)
	assert.Equal(t, 96, scaled.Bounds().Dx())
	assert.Equal(t, 192, scaled.Bounds().Dy())
}
