package stream

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/timeutil"
)

var (
	// ErrTimeout is returned by WaitForFrame when no frame arrived within
	// the caller's window. It is a retry condition, not a fault.
	ErrTimeout = errors.New("timeout waiting for frame")

	// ErrClosed is returned by WaitForFrame after Close.
	ErrClosed = errors.New("grabber closed")
)

// Dialer opens the TCP connection to the camera's data port. Injected so
// tests can run against an in-memory pipe.
type Dialer func(addr string) (net.Conn, error)

// DefaultDialer dials the camera with a short connect timeout.
func DefaultDialer(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, 2*time.Second)
}

// Grabber is a live binding to the camera's frame stream. It owns a reader
// goroutine that decodes frame packets onto an internal channel; callers pull
// with WaitForFrame. A Grabber whose camera has been reconfigured is stale:
// holders must Close and construct a new one rather than reuse it.
type Grabber struct {
	addr  string
	dial  Dialer
	clock timeutil.Clock

	frames chan *Frame
	done   chan struct{}

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Option configures a Grabber.
type Option func(*Grabber)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(g *Grabber) { g.dial = d }
}

// WithClock replaces the timeout clock.
func WithClock(c timeutil.Clock) Option {
	return func(g *Grabber) { g.clock = c }
}

// NewGrabber starts a grabber for the data stream at addr. Construction never
// fails: connection errors surface as timeouts from WaitForFrame and a
// logged warning, matching the loop's retry-forever contract.
func NewGrabber(addr string, opts ...Option) *Grabber {
	g := &Grabber{
		addr:   addr,
		dial:   DefaultDialer,
		clock:  timeutil.RealClock{},
		frames: make(chan *Frame, 2),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	go g.readLoop()
	return g
}

// readLoop dials the camera and decodes frames until the stream errors or the
// grabber is closed. It never reconnects: a broken stream means the binding
// is stale and the owner will replace the whole grabber.
func (g *Grabber) readLoop() {
	conn, err := g.dial(g.addr)
	if err != nil {
		monitoring.Warnf("frame stream dial %s failed: %v", g.addr, err)
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close()
		return
	}
	g.conn = conn
	g.mu.Unlock()

	r := bufio.NewReaderSize(conn, 64*1024)
	for {
		f, err := ReadFrame(r)
		if err != nil {
			select {
			case <-g.done:
				// Close tore down the connection under us.
			default:
				monitoring.Warnf("frame stream read failed: %v", err)
			}
			return
		}
		f.Timestamp = g.clock.Now()
		g.deliver(f)
	}
}

// deliver queues a frame, dropping the oldest buffered frame when the
// consumer is behind. The loop wants the freshest frame, not a backlog.
func (g *Grabber) deliver(f *Frame) {
	for {
		select {
		case <-g.done:
			return
		case g.frames <- f:
			return
		default:
		}
		select {
		case <-g.frames:
		default:
		}
	}
}

// WaitForFrame blocks until the next frame arrives or timeout elapses.
// Callers must hold exclusive access to the grabber; the node's slot
// guarantees that.
func (g *Grabber) WaitForFrame(timeout time.Duration) (*Frame, error) {
	timer := g.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-g.frames:
		return f, nil
	case <-g.done:
		return nil, ErrClosed
	case <-timer.C():
		return nil, ErrTimeout
	}
}

// Close tears down the connection and stops the reader goroutine. Safe to
// call more than once.
func (g *Grabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	close(g.done)
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}
