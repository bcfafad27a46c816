package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const (
	// maxInferenceDimension bounds the pixel payload sent to the
	// segmentation sidecar (base64 JSON roughly triples the byte size).
	maxInferenceDimension = 2048

	jpegQuality = 85
)

// GetOrientation extracts the EXIF orientation from JPEG data
func GetOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1 // No EXIF data
	}

	orientation, err := x.Get(exif.Orientation)
	if err != nil {
		return 1 // Orientation tag not present
	}

	orientVal, err := orientation.Int(0)
	if err != nil {
		return 1
	}

	return orientVal
}

// ExtractGPS reads the EXIF GPS position from JPEG data. Returns false when
// the image carries no usable GPS tags.
func ExtractGPS(data []byte) (float64, float64, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}

	lat, lon, err := x.LatLong()
	if err != nil {
		return 0, 0, false
	}

	return lat, lon, true
}

// CorrectOrientation applies the EXIF orientation to the image so that
// downstream pixel work sees the photo upright
func CorrectOrientation(img image.Image, orientation int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	switch orientation {
	case 2: // Flip horizontal
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(width-1-x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 3: // Rotate 180
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(width-1-x, height-1-y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 4: // Flip vertical
		newImg := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(x, height-1-y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 5: // Transpose
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(y, x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 6: // Rotate 90 clockwise
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(height-1-y, x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 7: // Transverse
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(height-1-y, width-1-x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	case 8: // Rotate 90 counter-clockwise
		newImg := image.NewRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				newImg.Set(y, width-1-x, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		return newImg
	default: // Orientation 1 or unknown
		return img
	}
}

// Normalize decodes an uploaded photo (JPEG, PNG or GIF), applies the EXIF
// orientation and bounds the dimensions for inference
func Normalize(data []byte) (image.Image, error) {
	orientation := GetOrientation(data)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation != 1 {
		img = CorrectOrientation(img, orientation)
		log.Infof("Applied orientation correction: %d", orientation)
	}

	return Downscale(img, maxInferenceDimension), nil
}

// Downscale scales the image down to fit within maxDim while preserving the
// aspect ratio. Images already within the limit are returned unchanged.
func Downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	if originalWidth <= maxDim && originalHeight <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(originalWidth)
	if scaleY := float64(maxDim) / float64(originalHeight); scaleY < scale {
		scale = scaleY
	}

	newWidth := int(float64(originalWidth) * scale)
	newHeight := int(float64(originalHeight) * scale)
	if newWidth > maxDim {
		newWidth = maxDim
	}
	if newHeight > maxDim {
		newHeight = maxDim
	}

	newImg := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.ApproxBiLinear.Scale(newImg, newImg.Bounds(), img, bounds, draw.Over, nil)

	log.Infof("Image downscaled: %dx%d -> %dx%d", originalWidth, originalHeight, newWidth, newHeight)

	return newImg
}

// maskOn reports whether the mask marks the pixel as part of the detection
func maskOn(mask image.Image, x, y int) bool {
	r, g, b, _ := mask.At(x, y).RGBA()
	return r|g|b > 0
}

// CountMaskPixels counts the pixels the mask marks as detected
func CountMaskPixels(mask image.Image) int {
	bounds := mask.Bounds()
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if maskOn(mask, x, y) {
				count++
			}
		}
	}
	return count
}

// OverlayMask paints the masked region solid red onto a copy of the photo.
// A mask with different dimensions is stretched onto the photo first.
func OverlayMask(photo image.Image, mask image.Image) *image.RGBA {
	bounds := photo.Bounds()
	overlay := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Copy(overlay, image.Point{}, photo, bounds, draw.Src, nil)

	if !mask.Bounds().Eq(overlay.Bounds()) {
		scaled := image.NewRGBA(overlay.Bounds())
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
		mask = scaled
	}

	red := color.RGBA{R: 255, A: 255}
	for y := 0; y < overlay.Bounds().Dy(); y++ {
		for x := 0; x < overlay.Bounds().Dx(); x++ {
			if maskOn(mask, x, y) {
				overlay.Set(x, y, red)
			}
		}
	}

	return overlay
}

// EncodeJPEG encodes the annotated image for storage
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
