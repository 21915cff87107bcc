package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/log"
	"firestige.xyz/framestream/internal/poll"
)

// ReplayOptions configure a pcap replay.
type ReplayOptions struct {
	Options
	Port  uint16  // UDP destination port to replay, 0 = every UDP datagram
	Speed float64 // 1 = recorded pace, 2 = twice as fast, <= 0 = as fast as possible
}

// Replay feeds frames recorded in a pcap file through an os.Pipe, so the
// consumer sees a real pollable transport exactly like a live connection.
// Each UDP payload in the capture must hold exactly one frame.
type Replay struct {
	path string
	opts ReplayOptions

	fc     atomic.Pointer[framedConn]
	cancel context.CancelFunc
	wg     sync.WaitGroup

	replayed atomic.Uint64
	skipped  atomic.Uint64
}

// NewReplay creates a replay source for the pcap file at path.
func NewReplay(path string, opts ReplayOptions) *Replay {
	opts.Options = opts.Options.withDefaults()
	return &Replay{path: path, opts: opts}
}

// Open opens the capture file and starts pumping frames into the pipe.
func (s *Replay) Open(ctx context.Context) error {
	if s.fc.Load() != nil {
		return fmt.Errorf("replay %s already open", s.path)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", s.path, core.ErrConnection, err)
	}
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("read pcap header %s: %w: %w", s.path, core.ErrConnection, err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		f.Close()
		return fmt.Errorf("create pipe: %w: %w", core.ErrConnection, err)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.fc.Store(newFramedConn(pr, pr, s.opts.Options))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer f.Close()
		defer pw.Close()
		s.pump(pumpCtx, reader, pw)
	}()
	return nil
}

// pump writes every matching UDP payload to w, paced by capture timestamps.
func (s *Replay) pump(ctx context.Context, reader *pcapgo.Reader, w io.Writer) {
	logger := log.GetLogger().WithField("replay", s.path)
	var (
		base    time.Time
		started time.Time
	)
	for {
		data, ci, err := reader.ReadPacketData()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WithError(err).Warn("pcap read failed, ending replay")
			}
			logger.Infof("replay finished: %d frames, %d skipped", s.replayed.Load(), s.skipped.Load())
			return
		}

		pkt := gopacket.NewPacket(data, reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			s.skipped.Add(1)
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if s.opts.Port != 0 && uint16(udp.DstPort) != s.opts.Port {
			s.skipped.Add(1)
			continue
		}

		if s.opts.Speed > 0 {
			if base.IsZero() {
				base, started = ci.Timestamp, time.Now()
			}
			due := started.Add(time.Duration(float64(ci.Timestamp.Sub(base)) / s.opts.Speed))
			if !sleepUntil(ctx, due) {
				return
			}
		} else if ctx.Err() != nil {
			return
		}

		if _, err := w.Write(udp.Payload); err != nil {
			// Reader side closed.
			return
		}
		s.replayed.Add(1)
	}
}

func sleepUntil(ctx context.Context, due time.Time) bool {
	d := time.Until(due)
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close stops the pump and closes the pipe.
func (s *Replay) Close() error {
	fc := s.fc.Swap(nil)
	if fc == nil {
		return nil
	}
	s.cancel()
	err := fc.conn.Close()
	s.wg.Wait()
	return err
}

// Receive blocks until one full frame has been replayed. io.EOF marks the end of the capture.
func (s *Replay) Receive() (*core.Packet, error) {
	fc := s.fc.Load()
	if fc == nil {
		return nil, core.ErrTransportClosed
	}
	return fc.receive()
}

// Handle returns the read end of the pipe, nil before Open.
func (s *Replay) Handle() poll.Handle {
	fc := s.fc.Load()
	if fc == nil {
		return nil
	}
	return fc.handle()
}

// Replayed returns the number of frames written so far.
func (s *Replay) Replayed() uint64 { return s.replayed.Load() }
