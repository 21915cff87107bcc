// Package metadata builds per-frame metadata records and ships them to a
// side channel (console, file or kafka).
package metadata

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"firestige.xyz/framestream/internal/core"
)

// Modality that carries camera intrinsics in the payload trailer.
const ModalityPV = "pv"

// intrinsicsLen is the trailer size: fx, fy, cx, cy as little-endian f32.
const intrinsicsLen = 16

// Record describes one delivered frame.
type Record struct {
	Framestamp     uint64      `json:"framestamp" yaml:"framestamp"`
	Timestamp      uint64      `json:"timestamp" yaml:"timestamp"`
	Pose           *core.Pose  `json:"pose,omitempty" yaml:"pose,omitempty"`
	Stream         string      `json:"stream" yaml:"stream"`
	Session        string      `json:"session" yaml:"session"`
	FocalLength    *[2]float32 `json:"focal_length,omitempty" yaml:"focal_length,omitempty"`
	PrincipalPoint *[2]float32 `json:"principal_point,omitempty" yaml:"principal_point,omitempty"`
}

// Build creates the record for packet p delivered as sequence seq.
func Build(modality, stream, session string, seq uint64, p *core.Packet) Record {
	r := Record{
		Framestamp: seq,
		Timestamp:  p.Timestamp,
		Pose:       p.Pose,
		Stream:     stream,
		Session:    session,
	}
	if modality == ModalityPV && len(p.Payload) >= intrinsicsLen {
		tail := p.Payload[len(p.Payload)-intrinsicsLen:]
		f := func(i int) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(tail[i*4:]))
		}
		r.FocalLength = &[2]float32{f(0), f(1)}
		r.PrincipalPoint = &[2]float32{f(2), f(3)}
	}
	return r
}

// Encode renders r as json or yaml.
func Encode(format string, r Record) ([]byte, error) {
	switch format {
	case "", "json":
		return json.Marshal(r)
	case "yaml":
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported metadata format: %s", format)
	}
}
