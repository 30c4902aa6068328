package tmod

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"path"
	"strings"
)

// Transcoder rewrites a file before it is added to an archive. Transform may
// change the entry path as well as the content.
type Transcoder struct {
	Name      string
	Match     func(entryPath string) bool
	Transform func(entryPath string, data []byte) (string, []byte, error)
}

// TranscoderChain is evaluated in order; the first matching transcoder is
// applied and the rest are skipped.
type TranscoderChain []Transcoder

// Apply runs the first matching transcoder, or returns the input unchanged.
func (c TranscoderChain) Apply(entryPath string, data []byte) (string, []byte, error) {
	for _, t := range c {
		if t.Match == nil || !t.Match(entryPath) {
			continue
		}
		newPath, out, err := t.Transform(entryPath, data)
		if err != nil {
			return "", nil, fmt.Errorf("%s transcoder on %s: %w", t.Name, entryPath, err)
		}
		return newPath, out, nil
	}
	return entryPath, data, nil
}

// RawImageVersion is the version field written at the start of a raw image.
const RawImageVersion = 1

// RawImageTranscoder converts png images into the raw pixel layout the game
// loads without a decoder: int32 version, int32 width, int32 height, then
// width*height RGBA pixels with straight alpha. The root icon.png is left as
// a png since mod browsers read it directly.
func RawImageTranscoder() Transcoder {
	return Transcoder{
		Name: "rawimg",
		Match: func(entryPath string) bool {
			return strings.EqualFold(path.Ext(entryPath), ".png") && !strings.EqualFold(entryPath, "icon.png")
		},
		Transform: func(entryPath string, data []byte) (string, []byte, error) {
			raw, err := EncodeRawImage(data)
			if err != nil {
				return "", nil, err
			}
			return strings.TrimSuffix(entryPath, path.Ext(entryPath)) + ".rawimg", raw, nil
		},
	}
}

// EncodeRawImage decodes a png and returns its raw image encoding.
func EncodeRawImage(pngData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}

	bounds := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	out := make([]byte, 12, 12+len(nrgba.Pix))
	binary.LittleEndian.PutUint32(out[0:], RawImageVersion)
	binary.LittleEndian.PutUint32(out[4:], uint32(bounds.Dx()))
	binary.LittleEndian.PutUint32(out[8:], uint32(bounds.Dy()))
	return append(out, nrgba.Pix...), nil
}

// DecodeRawImage parses a raw image back into an image.NRGBA.
func DecodeRawImage(raw []byte) (*image.NRGBA, error) {
	if len(raw) < 12 {
		return nil, fmt.Errorf("raw image too small: %d bytes", len(raw))
	}
	version := binary.LittleEndian.Uint32(raw[0:])
	if version != RawImageVersion {
		return nil, fmt.Errorf("unsupported raw image version %d", version)
	}
	width := int(int32(binary.LittleEndian.Uint32(raw[4:])))
	height := int(int32(binary.LittleEndian.Uint32(raw[8:])))
	if width < 0 || height < 0 || int64(width)*int64(height)*4 != int64(len(raw)-12) {
		return nil, fmt.Errorf("raw image %dx%d does not match %d pixel bytes", width, height, len(raw)-12)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, raw[12:])
	return img, nil
}
