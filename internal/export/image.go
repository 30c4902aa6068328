package export

import (
	"fmt"
	"image/png"
	"os"

	"github.com/jchantrell/tmodpack/internal/tmod"
)

// ConvertRawImageToPNG decodes a .rawimg payload and writes it to
// outputPath as a PNG.
func ConvertRawImageToPNG(raw []byte, outputPath string) error {
	img, err := tmod.DecodeRawImage(raw)
	if err != nil {
		return fmt.Errorf("decoding raw image: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding png: %w", err)
	}
	return f.Close()
}
