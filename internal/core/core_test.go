package core

import (
	"errors"
	"fmt"
	"testing"
)

// Test zero values of core structs
func TestStructZeroValues(t *testing.T) {
	t.Run("Packet", func(t *testing.T) {
		var p Packet
		if p.Sequence != 0 {
			t.Errorf("expected Sequence=0, got %d", p.Sequence)
		}
		if p.Payload != nil {
			t.Errorf("expected Payload=nil, got %v", p.Payload)
		}
		if p.Pose != nil {
			t.Errorf("expected Pose=nil, got %v", p.Pose)
		}
	})

	t.Run("Status", func(t *testing.T) {
		var s Status
		if s != StatusFound {
			t.Errorf("expected zero Status to be StatusFound, got %v", s)
		}
	})
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusFound, "found"},
		{StatusNotAvailable, "not_available"},
		{StatusEvicted, "evicted"},
		{StatusSourceLost, "source_lost"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Test sentinel errors survive wrapping
func TestErrorsWrapping(t *testing.T) {
	sentinels := []error{
		ErrTransportClosed,
		ErrConnection,
		ErrSourceLost,
		ErrNotConfigured,
		ErrAlreadyStarted,
		ErrStopped,
		ErrStreamClosed,
		ErrConfigInvalid,
	}
	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("stream pv: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is(%v, %v) = false", wrapped, sentinel)
		}
	}
	if errors.Is(ErrTransportClosed, ErrSourceLost) {
		t.Error("distinct sentinels must not match")
	}
}
