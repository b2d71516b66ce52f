package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/lovepark/tofnode/internal/stream"
	"github.com/lovepark/tofnode/internal/viz"
)

// AttachAdminRoutes attaches debugging endpoints to the given HTTP mux
// served at /debug/. These routes are for operator inspection and are not
// part of the node's API surface.
func (p *Publisher) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to issue Server-Side Events (SSE) for publication
	// events as frames come off the camera.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := p.Subscribe()
		defer p.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	// Latest published image for a topic, as PNG.
	debug.HandleSilentFunc("latest-image", func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("topic")
		if topic == "" {
			topic = "depth"
		}
		img := p.LatestImage(topic)
		if img == nil {
			http.Error(w, fmt.Sprintf("no image published on topic %q", topic), http.StatusNotFound)
			return
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			http.Error(w, "failed to encode image", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	})

	debug.HandleFunc("cloud-chart", "scatter plot of the latest point cloud", p.handleCloudChart)
	debug.HandleFunc("stats-chart", "bar chart of publisher throughput", p.handleStatsChart)
	debug.HandleFunc("amplitude-hist", "histogram of the latest amplitude image", p.handleAmplitudeHist)

	debug.HandleSilentFunc("publish-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Stats())
	})
}

// handleCloudChart renders a quick scatter plot (HTML) of the latest point
// cloud using go-echarts. Points are projected onto the X/Y plane and
// coloured by Z. Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (p *Publisher) handleCloudChart(w http.ResponseWriter, r *http.Request) {
	cloud := p.LatestCloud()
	if len(cloud) == 0 {
		http.Error(w, "no point cloud published yet", http.StatusNotFound)
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(cloud) > maxPoints {
		stride = int(math.Ceil(float64(len(cloud)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(cloud)/stride+1)
	maxAbs := 0.0
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(cloud); i += stride {
		pt := cloud[i]
		x, y, z := float64(pt.X), float64(pt.Y), float64(pt.Z)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, z}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxZ <= minZ {
		maxZ = minZ + 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ToF Point Cloud (XY)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "ToF Point Cloud", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("cloud", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAmplitudeHist renders the latest amplitude image's histogram as a
// PNG chart.
func (p *Publisher) handleAmplitudeHist(w http.ResponseWriter, r *http.Request) {
	img, ok := p.LatestImage("amplitude").(*image.Gray16)
	if !ok {
		http.Error(w, "no amplitude image published yet", http.StatusNotFound)
		return
	}

	b := img.Bounds()
	f := &stream.Frame{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Amplitude: make([]uint16, b.Dx()*b.Dy()),
	}
	for i := range f.Amplitude {
		f.Amplitude[i] = uint16(img.Pix[i*2])<<8 | uint16(img.Pix[i*2+1])
	}

	chart, err := viz.AmplitudeHistPlotPNG(f)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render histogram: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(chart)
}

// handleStatsChart renders a simple bar chart of publisher throughput.
func (p *Publisher) handleStatsChart(w http.ResponseWriter, r *http.Request) {
	stats := p.Stats()

	x := []string{"Events", "Dropped", "Subscribers"}
	y := []opts.BarData{
		{Value: stats.Events},
		{Value: stats.Dropped},
		{Value: stats.Subscribers},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Publisher Stats", Theme: "dark", Width: "700px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Publisher Throughput"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x)
	bar.AddSeries("counters", y)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
