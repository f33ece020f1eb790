package pdf

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Thumbnail scales a PNG screenshot to width, keeping the aspect ratio.
func Thumbnail(screenshot []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
