package node

import (
	"image"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lovepark/tofnode/internal/config"
	"github.com/lovepark/tofnode/internal/device"
	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/stream"
)

func init() {
	monitoring.SetLogger(nil)
}

// callLog records the order of calls across the fake device client and the
// fake source factory, so tests can assert cross-component ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// scriptClient is a scriptable device.Client. The zero value answers every
// call with success and reports application 1 as active.
type scriptClient struct {
	log *callLog

	dumpDoc      string
	toJSONErr    error
	fromJSONErr  error
	sessionErr   error
	modeErr      error
	deviceCfgErr error
	deleteErr    error
	active       int
}

func (c *scriptClient) ToJSON() (string, error) {
	c.log.add("ToJSON")
	if c.toJSONErr != nil {
		return "", c.toJSONErr
	}
	return c.dumpDoc, nil
}

func (c *scriptClient) FromJSON(doc string) error {
	c.log.add("FromJSON")
	return c.fromJSONErr
}

func (c *scriptClient) RequestSession() error {
	c.log.add("RequestSession")
	return c.sessionErr
}

func (c *scriptClient) CancelSession() error {
	c.log.add("CancelSession")
	return nil
}

func (c *scriptClient) SetOperatingMode(m device.OperatingMode) error {
	c.log.add("SetOperatingMode")
	return c.modeErr
}

func (c *scriptClient) DeviceConfig() (*device.DeviceConfig, error) {
	c.log.add("DeviceConfig")
	if c.deviceCfgErr != nil {
		return nil, c.deviceCfgErr
	}
	active := c.active
	if active == 0 {
		active = 1
	}
	return &device.DeviceConfig{
		Params: map[string]string{"ActiveApplication": strconv.Itoa(active)},
	}, nil
}

func (c *scriptClient) DeleteApplication(index int) error {
	c.log.add("DeleteApplication")
	return c.deleteErr
}

// fakeSource is a FrameSource fed through a buffered channel. WaitForFrame
// honours the timeout the same way the real grabber does.
type fakeSource struct {
	frames chan *stream.Frame

	mu     sync.Mutex
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan *stream.Frame, 8)}
}

func (s *fakeSource) push(f *stream.Frame) {
	s.frames <- f
}

func (s *fakeSource) WaitForFrame(timeout time.Duration) (*stream.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-time.After(timeout):
		return nil, stream.ErrTimeout
	}
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// sourceFactory builds fakeSources and remembers every one it made.
type sourceFactory struct {
	log *callLog

	mu   sync.Mutex
	made []*fakeSource
}

func (f *sourceFactory) New() FrameSource {
	src := newFakeSource()
	f.mu.Lock()
	f.made = append(f.made, src)
	f.mu.Unlock()
	if f.log != nil {
		f.log.add("NewSource")
	}
	return src
}

func (f *sourceFactory) latest() *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

// recordSink records publication topics in order.
type recordSink struct {
	mu     sync.Mutex
	topics []string
}

func (s *recordSink) record(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
}

func (s *recordSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}

func (s *recordSink) PublishCloud(frameID string, cloud []stream.Point)  { s.record("cloud") }
func (s *recordSink) PublishDepth(frameID string, img *image.Gray16)     { s.record("depth") }
func (s *recordSink) PublishAmplitude(frameID string, img *image.Gray16) { s.record("amplitude") }
func (s *recordSink) PublishConfidence(frameID string, img *image.Gray)  { s.record("confidence") }
func (s *recordSink) PublishViz(name, frameID string, img image.Image)   { s.record("viz:" + name) }

func testFrame() *stream.Frame {
	return &stream.Frame{
		Width:      2,
		Height:     2,
		Depth:      []uint16{100, 200, 300, 400},
		Amplitude:  []uint16{10, 20, 30, 40},
		Confidence: []uint8{0, 1, 0, 1},
		Cloud:      []stream.Point{{X: 0.1, Y: 0.2, Z: 0.3}},
		Timestamp:  time.Now(),
	}
}

// newTestNode builds a Node over fakes and resets the log so tests see only
// the calls their operation issued.
func newTestNode(t *testing.T, cfg config.Config, cam *scriptClient, sink Sink) (*Node, *sourceFactory, *callLog) {
	t.Helper()
	log := &callLog{}
	cam.log = log
	factory := &sourceFactory{log: log}
	n := New(cfg, cam, sink, factory.New)
	log.reset()
	return n, factory, log
}

func assertCalls(t *testing.T, log *callLog, want []string) {
	t.Helper()
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}
