package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

/*
Frame wire format

The camera pushes frames over TCP as length-prefixed packets:

	┌────────────┬──────────────┬─────────────────────────────┐
	│ magic (4B) │ length (4B)  │ payload (length bytes)      │
	│ "TOFD"     │ little-endian│                             │
	└────────────┴──────────────┴─────────────────────────────┘

Payload:

	uint32 width, uint32 height, uint32 chunkCount,
	then chunkCount chunks of: uint32 type, uint32 size, size bytes.

Chunk types carry one image each: radial distance and amplitude as uint16 per
pixel, confidence as uint8 per pixel, the cartesian cloud as three float32 per
pixel. All integers little-endian. A frame missing chunks is still valid; the
corresponding Frame fields stay nil.
*/

// Chunk type identifiers on the wire.
const (
	chunkRadialDistance = 1
	chunkAmplitude      = 2
	chunkConfidence     = 3
	chunkCartesian      = 4
)

var frameMagic = [4]byte{'T', 'O', 'F', 'D'}

// maxFramePayload bounds a single frame packet. A 352x264 sensor with all four
// chunks is under 2MB; anything larger is a corrupt stream.
const maxFramePayload = 8 << 20

// ReadFrame decodes the next frame packet from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	if [4]byte(header[:4]) != frameMagic {
		return nil, fmt.Errorf("bad frame magic %x", header[:4])
	}
	length := binary.LittleEndian.Uint32(header[4:])
	if length < 12 || length > maxFramePayload {
		return nil, fmt.Errorf("implausible frame payload length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated frame payload: %w", err)
	}
	return decodePayload(payload)
}

func decodePayload(payload []byte) (*Frame, error) {
	width := int(binary.LittleEndian.Uint32(payload[0:4]))
	height := int(binary.LittleEndian.Uint32(payload[4:8]))
	chunkCount := int(binary.LittleEndian.Uint32(payload[8:12]))
	if width <= 0 || height <= 0 || width*height > maxFramePayload/2 {
		return nil, fmt.Errorf("implausible frame dimensions %dx%d", width, height)
	}

	f := &Frame{Width: width, Height: height}
	pixels := width * height

	rest := payload[12:]
	for i := 0; i < chunkCount; i++ {
		if len(rest) < 8 {
			return nil, fmt.Errorf("truncated chunk header (chunk %d)", i)
		}
		chunkType := binary.LittleEndian.Uint32(rest[0:4])
		chunkLen := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if chunkLen > len(rest) {
			return nil, fmt.Errorf("chunk %d overruns payload (%d > %d)", i, chunkLen, len(rest))
		}
		data := rest[:chunkLen]
		rest = rest[chunkLen:]

		switch chunkType {
		case chunkRadialDistance:
			img, err := decodeUint16Image(data, pixels)
			if err != nil {
				return nil, fmt.Errorf("radial distance chunk: %w", err)
			}
			f.Depth = img
		case chunkAmplitude:
			img, err := decodeUint16Image(data, pixels)
			if err != nil {
				return nil, fmt.Errorf("amplitude chunk: %w", err)
			}
			f.Amplitude = img
		case chunkConfidence:
			if len(data) != pixels {
				return nil, fmt.Errorf("confidence chunk: %d bytes for %d pixels", len(data), pixels)
			}
			f.Confidence = append([]uint8(nil), data...)
		case chunkCartesian:
			if len(data) != pixels*12 {
				return nil, fmt.Errorf("cartesian chunk: %d bytes for %d pixels", len(data), pixels)
			}
			cloud := make([]Point, pixels)
			for p := 0; p < pixels; p++ {
				off := p * 12
				cloud[p] = Point{
					X: math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
					Y: math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])),
					Z: math.Float32frombits(binary.LittleEndian.Uint32(data[off+8:])),
				}
			}
			f.Cloud = cloud
		default:
			// Unknown chunks are skipped so firmware additions do not
			// break older nodes.
		}
	}
	return f, nil
}

func decodeUint16Image(data []byte, pixels int) ([]uint16, error) {
	if len(data) != pixels*2 {
		return nil, fmt.Errorf("%d bytes for %d pixels", len(data), pixels)
	}
	img := make([]uint16, pixels)
	for p := range img {
		img[p] = binary.LittleEndian.Uint16(data[p*2:])
	}
	return img, nil
}

// EncodeFrame serialises f into a frame packet. Used by tests and the frame
// replay tooling; the production path only decodes.
func EncodeFrame(f *Frame) []byte {
	pixels := f.Width * f.Height

	var chunks []byte
	appendChunk := func(chunkType uint32, data []byte) {
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[0:4], chunkType)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(data)))
		chunks = append(chunks, hdr[:]...)
		chunks = append(chunks, data...)
	}

	count := 0
	if f.Depth != nil {
		appendChunk(chunkRadialDistance, encodeUint16Image(f.Depth))
		count++
	}
	if f.Amplitude != nil {
		appendChunk(chunkAmplitude, encodeUint16Image(f.Amplitude))
		count++
	}
	if f.Confidence != nil {
		appendChunk(chunkConfidence, f.Confidence)
		count++
	}
	if f.Cloud != nil {
		data := make([]byte, pixels*12)
		for p, pt := range f.Cloud {
			off := p * 12
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(pt.X))
			binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(pt.Y))
			binary.LittleEndian.PutUint32(data[off+8:], math.Float32bits(pt.Z))
		}
		appendChunk(chunkCartesian, data)
		count++
	}

	payload := make([]byte, 12, 12+len(chunks))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(f.Width))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(f.Height))
	binary.LittleEndian.PutUint32(payload[8:12], uint32(count))
	payload = append(payload, chunks...)

	packet := make([]byte, 8, 8+len(payload))
	copy(packet[0:4], frameMagic[:])
	binary.LittleEndian.PutUint32(packet[4:8], uint32(len(payload)))
	return append(packet, payload...)
}

func encodeUint16Image(img []uint16) []byte {
	data := make([]byte, len(img)*2)
	for p, v := range img {
		binary.LittleEndian.PutUint16(data[p*2:], v)
	}
	return data
}
