package service

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds decoded images when the pipeline sets no limit.
const DefaultMaxPixels = 40_000_000

// DecodeFile decodes the image at path. Content that no registered decoder
// understands, or whose header declares more than maxPixels pixels, is
// reported as an invalid image. The header is checked before any pixel
// buffer is allocated.
func DecodeFile(path string, maxPixels int64) (image.Image, string, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", processingError("open upload", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", clientError(ErrInvalidImage, "file is not a valid image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", clientError(ErrInvalidImage, "file is not a valid image",
			fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height))
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", clientError(ErrInvalidImage,
			fmt.Sprintf("image too large: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels), nil)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", processingError("rewind upload", err)
	}
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", clientError(ErrInvalidImage, "file is not a valid image", err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, "", clientError(ErrInvalidImage, "file is not a valid image", fmt.Errorf("empty image %v", b))
	}
	return img, format, nil
}
