// Package stream receives frame data from the camera's TCP data port.
//
// A Grabber is a live, stateful binding to the sensor: once the camera's
// configuration changes underneath it, the binding is stale and must be
// discarded and re-dialled, never refreshed in place. The node's slot owns
// that lifecycle; this package only reads.
package stream

import "time"

// Point is one cartesian sample of the point cloud, in metres, camera frame.
type Point struct {
	X, Y, Z float32
}

// Frame is an immutable snapshot of one acquisition cycle. All image buffers
// are row-major, Width*Height samples.
type Frame struct {
	Width  int
	Height int

	// Depth holds radial distance per pixel in millimetres.
	Depth []uint16

	// Amplitude holds the normalised signal amplitude per pixel.
	Amplitude []uint16

	// Confidence holds the per-pixel confidence bit flags. Bit 0 set marks
	// an invalid pixel.
	Confidence []uint8

	// Cloud holds the cartesian point per pixel.
	Cloud []Point

	// Timestamp is when the frame was decoded off the wire.
	Timestamp time.Time
}
