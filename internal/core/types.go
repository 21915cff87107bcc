// Package core defines core types with zero external dependencies.
package core

// Status is the outcome of a frame selection.
type Status int

const (
	// StatusFound means a packet was selected.
	StatusFound Status = iota
	// StatusNotAvailable is transient: nothing to hand out yet, retry on a later tick.
	StatusNotAvailable
	// StatusEvicted is permanent for the requested sequence: its data is gone.
	StatusEvicted
	// StatusSourceLost is terminal: the producer lost its source.
	StatusSourceLost
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotAvailable:
		return "not_available"
	case StatusEvicted:
		return "evicted"
	case StatusSourceLost:
		return "source_lost"
	default:
		return "unknown"
	}
}

// Mode selects the execution model of a stream session.
type Mode string

const (
	// ModeSync receives and selects inline on the caller's tick.
	ModeSync Mode = "sync"
	// ModeAsync receives on a background producer; the caller only reads.
	ModeAsync Mode = "async"
)

// Policy names a frame selection policy.
type Policy string

const (
	PolicyLatest   Policy = "latest"
	PolicyNearest  Policy = "nearest"
	PolicyBuffered Policy = "buffered"
)
