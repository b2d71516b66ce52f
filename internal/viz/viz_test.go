package viz

import (
	"image/color"
	"testing"
	"time"

	"github.com/lovepark/tofnode/internal/stream"
)

func testFrame() *stream.Frame {
	return &stream.Frame{
		Width:      2,
		Height:     2,
		Depth:      []uint16{0, 1000, 2000, 4000},
		Amplitude:  []uint16{10, 20, 30, 40},
		Confidence: []uint8{0, 1, 2, 3},
		Cloud:      []stream.Point{{X: 1, Y: 2, Z: 3}},
		Timestamp:  time.Now(),
	}
}

func TestDepthImage(t *testing.T) {
	img := DepthImage(testFrame())

	if got := img.Bounds().Dx(); got != 2 {
		t.Errorf("width = %d, want 2", got)
	}
	if got := img.Gray16At(1, 0); got != (color.Gray16{Y: 1000}) {
		t.Errorf("pixel (1,0) = %v, want 1000", got)
	}
	if got := img.Gray16At(1, 1); got != (color.Gray16{Y: 4000}) {
		t.Errorf("pixel (1,1) = %v, want 4000", got)
	}
}

func TestAmplitudeImage(t *testing.T) {
	img := AmplitudeImage(testFrame())

	if got := img.Gray16At(0, 0); got != (color.Gray16{Y: 10}) {
		t.Errorf("pixel (0,0) = %v, want 10", got)
	}
	if got := img.Gray16At(1, 1); got != (color.Gray16{Y: 40}) {
		t.Errorf("pixel (1,1) = %v, want 40", got)
	}
}

func TestConfidenceImage(t *testing.T) {
	img := ConfidenceImage(testFrame())

	for i, want := range []uint8{0, 1, 2, 3} {
		if got := img.Pix[i]; got != want {
			t.Errorf("pixel %d = %d, want %d", i, got, want)
		}
	}
}

func TestDepthColormapNormalisesByMax(t *testing.T) {
	f := testFrame()
	img := DepthColormap(f)

	near := img.RGBAAt(0, 0) // depth 0
	far := img.RGBAAt(1, 1)  // depth 4000, the frame maximum

	if near == far {
		t.Error("expected distinct colors for min and max depth")
	}
	if near.A != 0xff || far.A != 0xff {
		t.Error("expected opaque pixels")
	}
	// Jet maps the far end towards red, the near end towards blue.
	if far.R <= far.B {
		t.Errorf("far pixel = %v, expected red-dominated", far)
	}
	if near.B <= near.R {
		t.Errorf("near pixel = %v, expected blue-dominated", near)
	}
}

func TestDepthColormapFlatFrame(t *testing.T) {
	f := testFrame()
	f.Depth = []uint16{0, 0, 0, 0}

	// Must not divide by zero; all pixels identical and opaque.
	img := DepthColormap(f)
	if img.RGBAAt(0, 0) != img.RGBAAt(1, 1) {
		t.Error("expected uniform image for flat depth")
	}
}

func TestGoodBadImage(t *testing.T) {
	img := GoodBadImage(testFrame())

	// Only the confidence LSB decides validity.
	want := []uint8{0, 255, 0, 255}
	for i := range want {
		if img.Pix[i] != want[i] {
			t.Errorf("pixel %d = %d, want %d", i, img.Pix[i], want[i])
		}
	}
}
