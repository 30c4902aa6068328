package tmod

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRawImageTranscoder(t *testing.T) {
	tc := RawImageTranscoder()

	assert.True(t, tc.Match("Content/Items/Sword.png"))
	assert.True(t, tc.Match("Content/Items/Sword.PNG"))
	assert.False(t, tc.Match("icon.png"))
	assert.True(t, tc.Match("Content/icon.png"))
	assert.False(t, tc.Match("Content/readme.txt"))

	newPath, raw, err := tc.Transform("Content/Items/Sword.png", testPNG(t, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, "Content/Items/Sword.rawimg", newPath)

	require.Len(t, raw, 12+3*2*4)
	assert.Equal(t, uint32(RawImageVersion), binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[4:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[8:]))

	img, err := DecodeRawImage(raw)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 2, G: 1, B: 200, A: 128}, img.NRGBAAt(2, 1))
}

func TestRawImageTranscoder_BadPNG(t *testing.T) {
	_, _, err := RawImageTranscoder().Transform("a.png", []byte("not a png"))
	assert.Error(t, err)
}

func TestDecodeRawImage_Invalid(t *testing.T) {
	_, err := DecodeRawImage([]byte{1, 2})
	assert.Error(t, err)

	raw := make([]byte, 12+4)
	binary.LittleEndian.PutUint32(raw[0:], 2)
	_, err = DecodeRawImage(raw)
	assert.Error(t, err)

	binary.LittleEndian.PutUint32(raw[0:], RawImageVersion)
	binary.LittleEndian.PutUint32(raw[4:], 2)
	binary.LittleEndian.PutUint32(raw[8:], 2)
	_, err = DecodeRawImage(raw)
	assert.Error(t, err)
}

func TestTranscoderChain_FirstMatchWins(t *testing.T) {
	upper := Transcoder{
		Name:  "upper",
		Match: func(p string) bool { return p == "a.txt" },
		Transform: func(p string, data []byte) (string, []byte, error) {
			return p, bytes.ToUpper(data), nil
		},
	}
	never := Transcoder{
		Name:  "never",
		Match: func(p string) bool { return true },
		Transform: func(p string, data []byte) (string, []byte, error) {
			return "", nil, errors.New("boom")
		},
	}
	chain := TranscoderChain{upper, never}

	p, data, err := chain.Apply("a.txt", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", p)
	assert.Equal(t, []byte("ABC"), data)

	_, _, err = chain.Apply("b.txt", []byte("abc"))
	assert.ErrorContains(t, err, "never transcoder on b.txt")

	p, data, err = TranscoderChain(nil).Apply("b.txt", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "b.txt", p)
	assert.Equal(t, []byte("abc"), data)
}
