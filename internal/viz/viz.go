// Package viz converts frames into publishable images.
//
// The raw depth, amplitude, and confidence images are straight format
// conversions. The colormap, good/bad pixel map, and amplitude histogram are
// the optional visualization products, enabled by the node's
// publish_viz_images setting.
package viz

import (
	"image"
	"image/color"

	"github.com/lovepark/tofnode/internal/stream"
)

// DepthImage converts the frame's radial distance buffer (millimetres) to a
// 16-bit grayscale image.
func DepthImage(f *stream.Frame) *image.Gray16 {
	return gray16From(f.Width, f.Height, f.Depth)
}

// AmplitudeImage converts the frame's amplitude buffer to a 16-bit grayscale
// image.
func AmplitudeImage(f *stream.Frame) *image.Gray16 {
	return gray16From(f.Width, f.Height, f.Amplitude)
}

// ConfidenceImage converts the frame's confidence flags to an 8-bit grayscale
// image.
func ConfidenceImage(f *stream.Frame) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Confidence)
	return img
}

func gray16From(w, h int, pix []uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for i, v := range pix {
		// Gray16 stores big-endian sample bytes.
		img.Pix[i*2] = uint8(v >> 8)
		img.Pix[i*2+1] = uint8(v)
	}
	return img
}

// DepthColormap renders the depth buffer as a false-color image: depth is
// normalised by the frame's maximum and mapped through a jet-style colormap,
// which reads far better than raw 16-bit grayscale on a screen.
func DepthColormap(f *stream.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	var max uint16
	for _, v := range f.Depth {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}

	for i, v := range f.Depth {
		c := jet(float64(v) / float64(max))
		img.Pix[i*4] = c.R
		img.Pix[i*4+1] = c.G
		img.Pix[i*4+2] = c.B
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// GoodBadImage renders pixel validity as a binary image: pixels whose
// confidence invalid bit is set render white, good pixels black.
func GoodBadImage(f *stream.Frame) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, c := range f.Confidence {
		img.Pix[i] = (c & 1) * 255
	}
	return img
}

// jet maps t in [0,1] to the jet colormap.
func jet(t float64) color.RGBA {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	r := clamp01(1.5 - abs(4*t-3))
	g := clamp01(1.5 - abs(4*t-2))
	b := clamp01(1.5 - abs(4*t-1))
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
