package cropper

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"server/internal/domain"
)

// Spec describes one face-relative crop: fixed output size plus padding
// ratios expressed as fractions of the face box, scaled by Zoom.
type Spec struct {
	TargetW   int
	TargetH   int
	PadTop    float64
	PadBottom float64
	PadLeft   float64
	PadRight  float64
	Zoom      float64
}

// SquareSpec is the 1200x1200 delivery crop. Zoom > 1 widens the frame,
// < 1 tightens it.
func SquareSpec(zoom float64) Spec {
	if zoom <= 0 {
		zoom = 1.0
	}
	return Spec{
		TargetW: 1200, TargetH: 1200,
		PadTop: 0.95, PadBottom: 0.85,
		PadLeft: 0.85, PadRight: 0.85,
		Zoom: zoom,
	}
}

// PortraitSpec is the 960x1200 (4:5) delivery crop with extra shoulder room.
// It is not zoom-adjustable.
func PortraitSpec() Spec {
	return Spec{
		TargetW: 960, TargetH: 1200,
		PadTop: 0.55, PadBottom: 1.40,
		PadLeft: 0.60, PadRight: 0.60,
		Zoom: 1.0,
	}
}

// Region computes the integer source-image rectangle for a face-centered crop.
// The result always satisfies 0 <= Min < Max <= bounds for images with at
// least one pixel of overlap; when the image is smaller than the desired crop,
// truncation may skew the aspect ratio rather than losing the face.
func Region(bounds image.Rectangle, face domain.FaceRect, spec Spec) image.Rectangle {
	imgW := float64(bounds.Dx())
	imgH := float64(bounds.Dy())

	zoom := spec.Zoom
	if zoom <= 0 {
		zoom = 1.0
	}

	cx := face.X + face.W/2
	cy := face.Y + face.H/2

	// Vertical extent from face height and padding ratios.
	cropTop := cy - face.H*spec.PadTop*zoom
	cropBottom := cy + face.H*spec.PadBottom*zoom
	cropH := cropBottom - cropTop

	// Width follows the target aspect ratio, centered on the face.
	aspect := float64(spec.TargetW) / float64(spec.TargetH)
	cropW := cropH * aspect
	cropLeft := cx - cropW/2
	cropRight := cx + cropW/2

	// Guarantee a minimum side margin so shoulders are never cropped tight,
	// regardless of the aspect-derived width.
	minSidePad := face.W * spec.PadLeft * zoom
	if cx-cropLeft < minSidePad {
		cropW = math.Max(cropW, (minSidePad+face.W/2)*2)
		cropLeft = cx - cropW/2
		cropRight = cx + cropW/2
	}

	// Clamp to image bounds by shifting the opposite edge, not shrinking.
	if cropLeft < 0 {
		cropRight -= cropLeft
		cropLeft = 0
	}
	if cropRight > imgW {
		cropLeft -= cropRight - imgW
		cropRight = imgW
	}
	if cropTop < 0 {
		cropBottom -= cropTop
		cropTop = 0
	}
	if cropBottom > imgH {
		cropTop -= cropBottom - imgH
		cropBottom = imgH
	}

	// Truncate whatever still overflows after shifting. This can skew the
	// aspect ratio for images barely larger than the crop; the resample step
	// restores the exact output size.
	left := int(math.Max(0, math.Floor(cropLeft)))
	top := int(math.Max(0, math.Floor(cropTop)))
	right := int(math.Min(imgW, math.Ceil(cropRight)))
	bottom := int(math.Min(imgH, math.Ceil(cropBottom)))

	if right <= left {
		right = left + 1
	}
	if bottom <= top {
		bottom = top + 1
	}

	return image.Rect(left, top, right, bottom).Add(bounds.Min)
}

// Crop extracts the face-centered region and resamples it to exactly the
// spec's target size using Lanczos.
func Crop(src image.Image, face domain.FaceRect, spec Spec) (*image.NRGBA, error) {
	if face.W <= 0 || face.H <= 0 {
		return nil, fmt.Errorf("cropper: invalid face rect %+v", face)
	}
	if src.Bounds().Dx() <= 0 || src.Bounds().Dy() <= 0 {
		return nil, fmt.Errorf("cropper: empty source image")
	}
	region := Region(src.Bounds(), face, spec)
	cropped := imaging.Crop(src, region)
	return imaging.Resize(cropped, spec.TargetW, spec.TargetH, imaging.Lanczos), nil
}
