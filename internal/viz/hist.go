package viz

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/lovepark/tofnode/internal/stream"
)

// histBins is the bin count for the published amplitude histogram image.
const histBins = 64

// AmplitudeHist bins the frame's amplitude values into histBins equal-width
// bins over the observed range. All counts land in the first bin when the
// frame is flat.
func AmplitudeHist(f *stream.Frame) []float64 {
	if len(f.Amplitude) == 0 {
		return make([]float64, histBins)
	}
	vals := make([]float64, len(f.Amplitude))
	for i, v := range f.Amplitude {
		vals[i] = float64(v)
	}
	sort.Float64s(vals)

	lo, hi := vals[0], vals[len(vals)-1]
	if hi == lo {
		counts := make([]float64, histBins)
		counts[0] = float64(len(vals))
		return counts
	}

	dividers := make([]float64, histBins+1)
	width := (hi - lo) / histBins
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	// Guard against float rounding shutting out the maximum value.
	dividers[histBins] = hi

	return stat.Histogram(nil, dividers, vals, nil)
}

// AmplitudeHistImage renders the amplitude histogram as a colormapped bar
// image, one column span per bin, tall bins bright.
func AmplitudeHistImage(f *stream.Frame) *image.RGBA {
	const width, height = 256, 100
	counts := AmplitudeHist(f)

	var max float64
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		max = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	colsPerBin := width / histBins
	for bin, c := range counts {
		barTop := height - int(c/max*float64(height))
		for x := bin * colsPerBin; x < (bin+1)*colsPerBin; x++ {
			for y := 0; y < height; y++ {
				t := 0.0
				if y >= barTop {
					t = c / max
				}
				col := jet(t)
				off := img.PixOffset(x, y)
				img.Pix[off] = col.R
				img.Pix[off+1] = col.G
				img.Pix[off+2] = col.B
				img.Pix[off+3] = 0xff
			}
		}
	}
	return img
}

// AmplitudeHistPlotPNG renders the amplitude histogram as a PNG chart for the
// debug routes.
func AmplitudeHistPlotPNG(f *stream.Frame) ([]byte, error) {
	vals := make(plotter.Values, len(f.Amplitude))
	for i, v := range f.Amplitude {
		vals[i] = float64(v)
	}

	p := plot.New()
	p.Title.Text = "Amplitude histogram"
	p.X.Label.Text = "amplitude"
	p.Y.Label.Text = "pixels"

	h, err := plotter.NewHist(vals, histBins)
	if err != nil {
		return nil, fmt.Errorf("failed to build histogram: %w", err)
	}
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render histogram: %w", err)
	}
	return buf.Bytes(), nil
}
