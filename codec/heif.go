package codec

import (
	"fmt"
	"sync"

	"github.com/h2non/bimg"
)

var vipsOnce sync.Once

func startVips() {
	vipsOnce.Do(func() {
		bimg.Initialize()
		bimg.VipsCacheSetMax(0)
		bimg.VipsCacheSetMaxMem(0)
	})
}

func stopVips() {
	bimg.Shutdown()
}

// HEIF encodes through libvips' heifsave (HEVC in a HEIF container).
type HEIF struct {
	// StripMetadata drops EXIF/XMP from the output.
	StripMetadata bool
}

func NewHEIF() *HEIF {
	return &HEIF{}
}

func (h *HEIF) Name() string {
	return "heif"
}

func (h *HEIF) Available() bool {
	return bimg.IsTypeSupportedSave(bimg.HEIF)
}

func (h *HEIF) Encode(src []byte, quality int) ([]byte, error) {
	out, err := bimg.NewImage(src).Process(bimg.Options{
		Type:          bimg.HEIF,
		Quality:       quality,
		StripMetadata: h.StripMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("libvips %s heif encode: %w", bimg.VipsVersion, err)
	}
	return out, nil
}
