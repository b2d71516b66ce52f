// Package node coordinates the camera node's two execution contexts: the
// frame acquisition loop and the administrative operations that must
// invalidate and recreate the streaming connection underneath it.
package node

import (
	"fmt"
	"image"

	"github.com/lovepark/tofnode/internal/config"
	"github.com/lovepark/tofnode/internal/device"
	"github.com/lovepark/tofnode/internal/stream"
)

// Sink is the downstream publication boundary. The loop hands every acquired
// frame's products through it, each tagged with the node's frame identifier;
// how they are serialised or transported is not this package's concern.
// Implementations must not assume they are called under any lock — they never
// are.
type Sink interface {
	PublishCloud(frameID string, cloud []stream.Point)
	PublishDepth(frameID string, img *image.Gray16)
	PublishAmplitude(frameID string, img *image.Gray16)
	PublishConfidence(frameID string, img *image.Gray)

	// PublishViz carries the optional visualization images (depth
	// colormap, good/bad pixel map, amplitude histogram) under a topic
	// name.
	PublishViz(name, frameID string, img image.Image)
}

// Node owns the camera handle, the grabber slot, and the publication sink.
// It is an explicit context object: construct once, pass by reference, no
// package-level state.
type Node struct {
	cfg       config.Config
	cam       device.Client
	slot      *GrabberSlot
	sink      Sink
	newSource func() FrameSource
}

// New builds a Node and dials the initial frame source. newSource is invoked
// once here and again by every administrative operation's rebuild; passing
// nil installs the production TCP grabber factory for cfg.
func New(cfg config.Config, cam device.Client, sink Sink, newSource func() FrameSource) *Node {
	if newSource == nil {
		addr := fmt.Sprintf("%s:%d", cfg.CameraAddr, cfg.DataPort)
		newSource = func() FrameSource { return stream.NewGrabber(addr) }
	}
	return &Node{
		cfg:       cfg,
		cam:       cam,
		sink:      sink,
		slot:      NewGrabberSlot(newSource()),
		newSource: newSource,
	}
}

// Slot exposes the grabber slot, primarily so tests can observe generations.
func (n *Node) Slot() *GrabberSlot {
	return n.slot
}

// Close releases the current frame source.
func (n *Node) Close() error {
	return n.slot.WithExclusive(func(g *Guard) error {
		if src := g.Source(); src != nil {
			return src.Close()
		}
		return nil
	})
}
