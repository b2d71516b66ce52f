package node

import (
	"sync"
	"time"

	"github.com/lovepark/tofnode/internal/stream"
)

// FrameSource is the slice of the stream.Grabber surface the node core needs.
// Production uses *stream.Grabber; tests script their own.
type FrameSource interface {
	WaitForFrame(timeout time.Duration) (*stream.Frame, error)
	Close() error
}

// GrabberSlot holds the single mutable reference to the current frame source,
// guarded by one mutex. The acquisition loop and every administrative
// operation contend for this lock; it is deliberately the only lock in the
// subsystem, and deliberately coarse. Contention is bounded by the frame wait
// timeout plus occasional administrative latency, which is an acceptable
// price for the property that no holder ever sees a half-replaced source.
type GrabberSlot struct {
	mu  sync.Mutex
	src FrameSource
	gen uint64
}

// NewGrabberSlot creates a slot holding src as generation 1.
func NewGrabberSlot(src FrameSource) *GrabberSlot {
	return &GrabberSlot{src: src, gen: 1}
}

// Guard is the capability handed to WithExclusive callbacks. It is valid only
// for the duration of the callback; replacement outside the lock is
// structurally impossible.
type Guard struct {
	slot *GrabberSlot
}

// Source returns the slot's current frame source.
func (g *Guard) Source() FrameSource {
	return g.slot.src
}

// Replace installs src as the slot's frame source and closes the one it
// displaces. The generation counter advances by exactly one.
func (g *Guard) Replace(src FrameSource) {
	old := g.slot.src
	g.slot.src = src
	g.slot.gen++
	if old != nil {
		old.Close()
	}
}

// WithExclusive runs fn while holding the slot's lock. Any other goroutine
// entering WithExclusive blocks until fn returns; the lock is released on all
// exit paths.
func (s *GrabberSlot) WithExclusive(fn func(g *Guard) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Guard{slot: s})
}

// Generation returns the number of sources the slot has held. Administrative
// operations advance it by exactly one each, which is how tests verify the
// rebuild-on-every-path contract.
func (s *GrabberSlot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
