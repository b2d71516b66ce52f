package publish

import (
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/stream"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestNewPublisher(t *testing.T) {
	pub := NewPublisher()

	if pub == nil {
		t.Fatal("expected non-nil Publisher")
	}
	if pub.eventChan == nil {
		t.Error("expected non-nil eventChan")
	}
	if pub.subscribers == nil {
		t.Error("expected non-nil subscribers map")
	}
	if pub.stopCh == nil {
		t.Error("expected non-nil stopCh")
	}
}

func TestPublisherStatsNotRunning(t *testing.T) {
	pub := NewPublisher()

	stats := pub.Stats()
	if stats.Running {
		t.Error("expected Running=false before Start")
	}
	if stats.Events != 0 {
		t.Errorf("expected Events=0, got %d", stats.Events)
	}
	if stats.Subscribers != 0 {
		t.Errorf("expected Subscribers=0, got %d", stats.Subscribers)
	}
}

func TestPublisherStartStop(t *testing.T) {
	pub := NewPublisher()

	pub.Start()
	if !pub.Stats().Running {
		t.Error("expected Running=true after Start")
	}

	// Start again is a no-op
	pub.Start()

	pub.Stop()
	if pub.Stats().Running {
		t.Error("expected Running=false after Stop")
	}

	// Stop again should be safe
	pub.Stop()
}

func TestPublishNotRunningIsNoOp(t *testing.T) {
	pub := NewPublisher()

	pub.PublishCloud("link", []stream.Point{{X: 1}})
	if got := pub.Stats().Events; got != 0 {
		t.Errorf("expected no events before Start, got %d", got)
	}
	// The latest snapshot is still retained for debug endpoints.
	if pub.LatestCloud() == nil {
		t.Error("expected latest cloud to be retained")
	}
}

func TestSubscriberReceivesEvents(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	id, ch := pub.Subscribe()
	defer pub.Unsubscribe(id)

	pub.PublishDepth("tof_link", image.NewGray16(image.Rect(0, 0, 4, 4)))

	select {
	case ev := <-ch:
		if ev.Topic != "depth" {
			t.Errorf("expected topic depth, got %q", ev.Topic)
		}
		if ev.FrameID != "tof_link" {
			t.Errorf("expected frame_id tof_link, got %q", ev.FrameID)
		}
		if ev.Seq == 0 {
			t.Error("expected non-zero sequence number")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	// Subscribe but never read: once the channel buffer fills, further
	// events are dropped for this subscriber without blocking the
	// broadcast loop.
	id, _ := pub.Subscribe()
	defer pub.Unsubscribe(id)

	for i := 0; i < 50; i++ {
		pub.PublishCloud("link", []stream.Point{{X: float32(i)}})
	}

	deadline := time.After(2 * time.Second)
	for pub.Stats().Dropped == 0 {
		select {
		case <-deadline:
			t.Fatal("expected dropped events for a slow subscriber")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	id, ch := pub.Subscribe()
	if got := pub.Stats().Subscribers; got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	pub.Unsubscribe(id)
	if got := pub.Stats().Subscribers; got != 0 {
		t.Errorf("expected 0 subscribers, got %d", got)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}

	// Double unsubscribe is harmless.
	pub.Unsubscribe(id)
}

func TestLatestImageRetainedPerTopic(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	depth := image.NewGray16(image.Rect(0, 0, 2, 2))
	amp := image.NewGray16(image.Rect(0, 0, 3, 3))
	pub.PublishDepth("link", depth)
	pub.PublishAmplitude("link", amp)
	pub.PublishViz("hist", "link", image.NewRGBA(image.Rect(0, 0, 8, 8)))

	if got := pub.LatestImage("depth"); got != depth {
		t.Error("expected latest depth image to be retained")
	}
	if got := pub.LatestImage("amplitude"); got != amp {
		t.Error("expected latest amplitude image to be retained")
	}
	if pub.LatestImage("hist") == nil {
		t.Error("expected latest hist image to be retained")
	}
	if pub.LatestImage("nope") != nil {
		t.Error("expected nil for unknown topic")
	}
}

// localHostRequest creates an httptest request that appears to come from
// localhost. This bypasses tsweb.AllowDebugAccess which checks for loopback
// IPs.
func localHostRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestLatestImageEndpoint(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	httpMux := http.NewServeMux()
	pub.AttachAdminRoutes(httpMux)

	// No image yet
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/latest-image?topic=depth"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any publish, got %d", rec.Code)
	}

	pub.PublishDepth("link", image.NewGray16(image.Rect(0, 0, 4, 4)))

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/latest-image?topic=depth"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	// PNG signature
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("expected PNG payload")
	}
}

func TestCloudChartEndpoint(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	httpMux := http.NewServeMux()
	pub.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/cloud-chart"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any cloud, got %d", rec.Code)
	}

	cloud := make([]stream.Point, 100)
	for i := range cloud {
		cloud[i] = stream.Point{X: float32(i), Y: float32(-i), Z: float32(i) * 0.1}
	}
	pub.PublishCloud("link", cloud)

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/cloud-chart"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("expected rendered echarts page")
	}
}

func TestAmplitudeHistEndpoint(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	httpMux := http.NewServeMux()
	pub.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/amplitude-hist"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any publish, got %d", rec.Code)
	}

	amp := image.NewGray16(image.Rect(0, 0, 4, 4))
	for i := 0; i < 16; i++ {
		amp.SetGray16(i%4, i/4, color.Gray16{Y: uint16(i * 100)})
	}
	pub.PublishAmplitude("link", amp)

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/amplitude-hist"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Body.String(), "\x89PNG") {
		t.Error("expected PNG payload")
	}
}

func TestStatsEndpoints(t *testing.T) {
	pub := NewPublisher()
	pub.Start()
	defer pub.Stop()

	httpMux := http.NewServeMux()
	pub.AttachAdminRoutes(httpMux)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/publish-stats"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"running\":true") {
		t.Errorf("expected running=true in stats, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/stats-chart"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from stats-chart, got %d", rec.Code)
	}
}
