// Package imaging validates uploaded image data and normalizes JPEG
// orientation from EXIF metadata before the bytes reach disk.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/webp" // WebP decode support

	"github.com/penlight/penlight/internal/model"
)

// Shape classifications derived from image dimensions.
const (
	ShapePortrait  = "portrait"
	ShapeLandscape = "landscape"
	ShapeSquare    = "square"
)

// DetectFormat sniffs the MIME type from the leading bytes of data.
func DetectFormat(data []byte) string {
	return http.DetectContentType(data)
}

// Validate checks that data is a supported image type and actually decodes.
// A mislabeled or truncated file fails here before anything is written.
func Validate(data []byte) (string, error) {
	mimeType := DetectFormat(data)
	if !model.IsSupportedImageType(mimeType) {
		return "", fmt.Errorf("unsupported image type %q", mimeType)
	}

	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	return mimeType, nil
}

// Dimensions returns the pixel width and height of an image.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("reading image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Shape classifies dimensions as portrait, landscape, or square.
func Shape(width, height int) string {
	switch {
	case height > width:
		return ShapePortrait
	case width > height:
		return ShapeLandscape
	default:
		return ShapeSquare
	}
}

// NormalizeOrientation applies the EXIF orientation of a JPEG to its pixel
// data and re-encodes it upright. Non-JPEG data and JPEGs without a usable
// orientation tag pass through unchanged.
func NormalizeOrientation(data []byte) ([]byte, error) {
	if DetectFormat(data) != model.MimeTypeJPEG {
		return data, nil
	}

	orientation := exifOrientation(data)
	if orientation <= 1 {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding jpeg: %w", err)
	}

	img = applyOrientation(img, orientation)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// exifOrientation extracts the EXIF orientation tag, returning 0 when the
// data carries none.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return orientation
}

// applyOrientation maps the eight EXIF orientation values onto flips and
// rotations.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
