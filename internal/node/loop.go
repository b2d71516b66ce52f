package node

import (
	"context"
	"errors"
	"time"

	"github.com/lovepark/tofnode/internal/monitoring"
	"github.com/lovepark/tofnode/internal/stream"
	"github.com/lovepark/tofnode/internal/viz"
)

// Run is the frame acquisition loop. Each iteration takes the slot lock,
// waits up to the configured timeout for one frame, releases the lock, and
// publishes outside it so slow downstream consumers never block an
// administrative operation.
//
// A timeout is not a failure: it logs a warning and the loop retries
// immediately, forever. A camera that stops responding therefore shows up as
// a continuous warning stream rather than a dead node. Shutdown is observed
// once per iteration; a blocked frame wait or an in-flight administrative
// call is never interrupted mid-operation.
func (n *Node) Run(ctx context.Context) error {
	timeout := time.Duration(n.cfg.TimeoutMillis) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var frame *stream.Frame
		err := n.slot.WithExclusive(func(g *Guard) error {
			f, err := g.Source().WaitForFrame(timeout)
			if err != nil {
				return err
			}
			frame = f
			return nil
		})
		if err != nil {
			if errors.Is(err, stream.ErrTimeout) {
				monitoring.Warnf("timeout waiting for camera: %v", err)
			} else {
				monitoring.Warnf("frame wait failed: %v", err)
			}
			continue
		}

		// Lock released: hand off to publication.
		n.publishFrame(frame)
	}
}

func (n *Node) publishFrame(f *stream.Frame) {
	id := n.cfg.FrameID

	if f.Cloud != nil {
		n.sink.PublishCloud(id, f.Cloud)
	}
	if f.Depth != nil {
		n.sink.PublishDepth(id, viz.DepthImage(f))
	}
	if f.Amplitude != nil {
		n.sink.PublishAmplitude(id, viz.AmplitudeImage(f))
	}
	if f.Confidence != nil {
		n.sink.PublishConfidence(id, viz.ConfidenceImage(f))
	}

	if !n.cfg.PublishVizImages {
		return
	}
	if f.Depth != nil {
		n.sink.PublishViz("depth_viz", id, viz.DepthColormap(f))
	}
	if f.Confidence != nil {
		n.sink.PublishViz("good_bad_pixels", id, viz.GoodBadImage(f))
	}
	if f.Amplitude != nil {
		n.sink.PublishViz("hist", id, viz.AmplitudeHistImage(f))
	}
}
