package codec

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/avif"
)

// AVIF encodes AV1 stills in a HEIF container. It needs no system
// libraries: gen2brain/avif falls back to a bundled WASM build of libavif.
type AVIF struct {
	// Speed is the encoder speed, 0 (slowest) to 10.
	Speed int
}

func NewAVIF() *AVIF {
	return &AVIF{Speed: 6}
}

func (a *AVIF) Name() string {
	return "avif"
}

func (a *AVIF) Available() bool {
	return true
}

func (a *AVIF) Encode(src []byte, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	err = avif.Encode(&buf, img, avif.Options{
		Quality:           quality,
		QualityAlpha:      quality,
		Speed:             a.Speed,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s to avif: %w", format, err)
	}
	return buf.Bytes(), nil
}
