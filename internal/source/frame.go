package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"firestige.xyz/framestream/internal/core"
)

// Frame layout, little-endian:
//
//	timestamp u64 | size u32 | payload[size] | pose 16 x f32 (optional)
const (
	headerSize = 12
	poseSize   = 64
)

// ReadFrame reads one frame from r. It blocks until the frame is complete.
func ReadFrame(r io.Reader, withPose bool, maxPayload uint32) (*core.Packet, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	ts := binary.LittleEndian.Uint64(hdr[0:8])
	size := binary.LittleEndian.Uint32(hdr[8:12])
	if maxPayload > 0 && size > maxPayload {
		return nil, fmt.Errorf("frame payload %d exceeds limit %d", size, maxPayload)
	}

	p := &core.Packet{Timestamp: ts, Payload: make([]byte, size)}
	if _, err := io.ReadFull(r, p.Payload); err != nil {
		return nil, unexpected(err)
	}
	if withPose {
		var raw [poseSize]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return nil, unexpected(err)
		}
		var pose core.Pose
		for i := range pose {
			pose[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		p.Pose = &pose
	}
	return p, nil
}

// WriteFrame encodes p. The pose is written when p.Pose is set.
func WriteFrame(w io.Writer, p *core.Packet) error {
	buf := make([]byte, headerSize, headerSize+len(p.Payload)+poseSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(p.Payload)))
	buf = append(buf, p.Payload...)
	if p.Pose != nil {
		for _, v := range p.Pose {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	_, err := w.Write(buf)
	return err
}

// A frame cut short after its header is a broken stream, not a clean end.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
