// Package core defines core data structures with zero external dependencies.
package core

// Pose is a 4x4 rig-to-world transform in column-major order, as sent by the device.
type Pose [16]float32

// Packet is one unit of received sensor data.
//
// Sources fill Timestamp, Payload and Pose. Sequence is assigned by the
// history that retains the packet; once appended a Packet is never mutated.
type Packet struct {
	Sequence  uint64 // Framestamp: receive order, starts at 1
	Timestamp uint64 // Device clock units, monotonic within one connection
	Payload   []byte // Opaque sensor payload
	Pose      *Pose  // Optional, nil when the stream carries no pose
}
