package imaging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedKey(t *testing.T) {
	assert.True(t, IsSupportedKey("photos/a.png"))
	assert.True(t, IsSupportedKey("photos/b.JPG"))
	assert.True(t, IsSupportedKey("c.tiff"))

	assert.False(t, IsSupportedKey("notes.txt"))
	assert.False(t, IsSupportedKey("archive.zip"))
	assert.False(t, IsSupportedKey("photos/raw.webp"))
	assert.False(t, IsSupportedKey("noextension"))
}

func TestFormatForKey(t *testing.T) {
	format, err := FormatForKey("a.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	format, err = FormatForKey("b.TIF")
	require.NoError(t, err)
	assert.Equal(t, "tiff", format)

	_, err = FormatForKey("c.webp")
	assert.Error(t, err)
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat(FormatKeep))
	assert.NoError(t, ValidateFormat("jpeg"))
	assert.NoError(t, ValidateFormat("png"))

	assert.Error(t, ValidateFormat("webp"))
	assert.Error(t, ValidateFormat(""))
	assert.Error(t, ValidateFormat("JPEG"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("jpeg"))
	assert.Equal(t, ".png", Extension("png"))
	assert.Equal(t, ".tiff", Extension("tiff"))
}

func TestEncodeDecode(t *testing.T) {
	src := testImage(24, 16)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src, "png", 0))

	img, format, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 24, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestEncodeJPEGQuality(t *testing.T) {
	src := testImage(200, 200)

	var high, low bytes.Buffer
	require.NoError(t, Encode(&high, src, "jpeg", 95))
	require.NoError(t, Encode(&low, src, "jpeg", 10))

	assert.Greater(t, high.Len(), low.Len())
}

func TestEncodeRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(4, 4), "webp", 0)
	assert.Error(t, err)

	err = Encode(&buf, testImage(4, 4), FormatKeep, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
