// Package stream is the caller-facing sensor stream session. It hides the
// choice between sync mode (the tick drains the transport) and async mode
// (a producer goroutine drains it) behind one Tick contract.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/inline"
	"firestige.xyz/framestream/internal/log"
	"firestige.xyz/framestream/internal/metadata"
	"firestige.xyz/framestream/internal/metrics"
	"firestige.xyz/framestream/internal/producer"
	"firestige.xyz/framestream/internal/selector"
	"firestige.xyz/framestream/internal/source"
)

// Config selects mode, history size and picking policy.
type Config struct {
	Name         string
	Mode         core.Mode
	Capacity     int
	SinkCapacity int // async only; 0 = Capacity
	Policy       core.Policy
	Modality     string
}

// ConfigFrom converts a validated stream config.
func ConfigFrom(sc config.StreamConfig) Config {
	return Config{
		Name:         sc.Name,
		Mode:         core.Mode(sc.Mode),
		Capacity:     sc.BufferLen,
		SinkCapacity: sc.SinkCapacity,
		Policy:       core.Policy(sc.Picker),
		Modality:     sc.Modality,
	}
}

// Option configures a Stream.
type Option func(*Stream)

// WithReporter sends a metadata record for every delivered frame to r.
func WithReporter(r metadata.Reporter) Option {
	return func(s *Stream) { s.reporter = r }
}

// WithBoard publishes every delivered frame on b.
func WithBoard(b *Board) Option {
	return func(s *Stream) { s.board = b }
}

// WithSession overrides the generated session id.
func WithSession(id string) Option {
	return func(s *Stream) { s.session = id }
}

// Stream is one sensor stream session. Tick, Delivered and LastStatus must be
// called from a single goroutine; in async mode the packet source is drained
// by a separate producer goroutine.
type Stream struct {
	cfg      Config
	src      source.Source
	session  string
	reporter metadata.Reporter
	board    *Board
	logger   log.Logger

	recv *inline.Receiver
	prod   *producer.Producer
	sink   *producer.Sink
	cancel context.CancelFunc

	open      bool
	closed    bool
	last      uint64
	delivered *core.Packet
	count     uint64
	status    core.Status

	seenReceived uint64
	seenEvicted  uint64
}

// New creates a stream over an unopened source.
func New(cfg Config, src source.Source, opts ...Option) *Stream {
	if cfg.Mode == "" {
		cfg.Mode = core.ModeSync
	}
	if cfg.Policy == "" {
		cfg.Policy = core.PolicyLatest
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = config.DefaultBufferLen
	}
	s := &Stream{
		cfg:      cfg,
		src:      src,
		reporter: metadata.Discard,
		status:   core.StatusNotAvailable,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == "" {
		s.session = uuid.NewString()
	}
	s.logger = log.GetLogger().WithFields(map[string]any{
		"stream":  cfg.Name,
		"session": s.session,
	})
	return s
}

// Open connects the source and sets up the history for the configured mode.
// ctx bounds the connect only; the session lives until Close or a lost
// transport in both modes.
func (s *Stream) Open(ctx context.Context) error {
	if s.closed {
		return core.ErrStreamClosed
	}
	if s.open {
		return nil
	}
	if err := s.src.Open(ctx); err != nil {
		return fmt.Errorf("open stream %s: %w", s.cfg.Name, err)
	}

	switch s.cfg.Mode {
	case core.ModeAsync:
		if err := s.startProducer(); err != nil {
			s.src.Close()
			return err
		}
	default:
		s.recv = inline.New(s.src, s.cfg.Capacity)
	}

	s.open = true
	metrics.StreamStatus.WithLabelValues(s.cfg.Name).Set(metrics.StreamStatusOpen)
	s.logger.Infof("stream opened, mode %s, picker %s, capacity %d", s.cfg.Mode, s.cfg.Policy, s.cfg.Capacity)
	return nil
}

// startProducer runs the worker on a context owned by the stream, so the ctx
// given to Open bounds only the connect. The producer is kept only once it
// is started and a sink is attached.
func (s *Stream) startProducer() error {
	ctx, cancel := context.WithCancel(context.Background())
	prod := producer.New(producer.Config{Name: s.cfg.Name, Capacity: s.cfg.Capacity})
	if err := prod.Configure(s.src); err != nil {
		cancel()
		return err
	}
	if err := prod.Start(ctx); err != nil {
		cancel()
		return err
	}
	sink, err := prod.Attach(s.cfg.SinkCapacity)
	if err != nil {
		cancel()
		prod.Close()
		return err
	}
	s.prod, s.sink, s.cancel = prod, sink, cancel
	return nil
}

func (s *Stream) criterion(ref Reference) (selector.Criterion, bool) {
	switch s.cfg.Policy {
	case core.PolicyNearest:
		if ref == nil {
			return selector.Criterion{}, false
		}
		return selector.Nearest(ref.Timestamp()), true
	case core.PolicyBuffered:
		if ref == nil {
			return selector.Criterion{}, false
		}
		return selector.Exact(ref.Sequence()), true
	default:
		return selector.Latest(), true
	}
}

// Tick runs one cycle: receive whatever arrived (sync mode), select a frame
// and deliver it if it is newer than the previous delivery. ref is ignored by
// the latest picker; nearest and buffered pickers report NotAvailable while
// ref is nil.
//
// Evicted and NotAvailable are normal outcomes, reported by LastStatus. A
// lost transport is returned once as an error wrapping
// core.ErrTransportClosed or core.ErrSourceLost; the stream is closed and
// later ticks return core.ErrStreamClosed.
func (s *Stream) Tick(ref Reference) (bool, error) {
	if s.closed {
		return false, core.ErrStreamClosed
	}
	if !s.open {
		return false, core.ErrNotConfigured
	}
	start := time.Now()
	defer func() {
		metrics.TickLatencySeconds.WithLabelValues(s.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	if s.recv != nil {
		if _, err := s.recv.ReceiveAvailable(); err != nil {
			s.observe()
			return false, s.fail(err)
		}
	}
	s.observe()

	c, ok := s.criterion(ref)
	if !ok {
		s.record(c, core.StatusNotAvailable)
		return false, nil
	}

	var res selector.Result
	if s.recv != nil {
		res = s.recv.Select(c)
	} else {
		res = s.sink.Select(c)
		if res.Status == core.StatusSourceLost {
			s.record(c, res.Status)
			return false, s.fail(s.prod.Err())
		}
	}

	if res.Found() && res.Sequence <= s.last {
		res = selector.NotAvailable
	}
	s.record(c, res.Status)
	if !res.Found() {
		return false, nil
	}

	s.last = res.Sequence
	s.delivered = res.Packet
	s.count++
	s.deliver(res)
	return true, nil
}

func (s *Stream) deliver(res selector.Result) {
	metrics.FramesDeliveredTotal.WithLabelValues(s.cfg.Name).Inc()

	rec := metadata.Build(s.cfg.Modality, s.cfg.Name, s.session, res.Sequence, res.Packet)
	if s.board != nil {
		s.board.Publish(rec)
	}
	if err := s.reporter.Report(context.Background(), rec); err != nil {
		metrics.MetadataErrorsTotal.WithLabelValues(s.cfg.Name, s.reporter.Name()).Inc()
		s.logger.WithError(err).Warnf("report metadata of frame %d", res.Sequence)
	}
}

func (s *Stream) record(c selector.Criterion, status core.Status) {
	s.status = status
	metrics.SelectionsTotal.WithLabelValues(s.cfg.Name, string(c.Policy), status.String()).Inc()
}

// observe exports counter deltas and occupancy for the current history owner.
func (s *Stream) observe() {
	var received, evicted uint64
	var occupancy int
	if s.recv != nil {
		received, evicted, occupancy = s.recv.Received(), s.recv.Evicted(), s.recv.History().Len()
	} else {
		received, evicted, occupancy = s.prod.Received(), s.prod.Evicted(), s.prod.Len()
	}
	mode := string(s.cfg.Mode)
	if d := received - s.seenReceived; d > 0 {
		metrics.PacketsReceivedTotal.WithLabelValues(s.cfg.Name, mode).Add(float64(d))
	}
	if d := evicted - s.seenEvicted; d > 0 {
		metrics.PacketsEvictedTotal.WithLabelValues(s.cfg.Name, mode).Add(float64(d))
	}
	s.seenReceived, s.seenEvicted = received, evicted
	metrics.BufferOccupancy.WithLabelValues(s.cfg.Name).Set(float64(occupancy))
}

func (s *Stream) fail(err error) error {
	if err == nil {
		err = core.ErrSourceLost
	}
	s.status = core.StatusSourceLost
	s.logger.WithError(err).Error("stream lost, closing")
	s.shutdown()
	metrics.StreamStatus.WithLabelValues(s.cfg.Name).Set(metrics.StreamStatusLost)
	return err
}

// Close releases the transport. Idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	err := s.shutdown()
	metrics.StreamStatus.WithLabelValues(s.cfg.Name).Set(metrics.StreamStatusClosed)
	s.logger.Infof("stream closed after %d deliveries", s.count)
	return err
}

func (s *Stream) shutdown() error {
	s.closed = true
	if !s.open {
		return nil
	}
	if s.sink != nil {
		s.sink.Detach()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.prod != nil {
		return s.prod.Close()
	}
	if err := s.src.Close(); err != nil && !errors.Is(err, core.ErrTransportClosed) {
		return err
	}
	return nil
}

// Delivered returns the sequence and packet of the newest delivery.
func (s *Stream) Delivered() (uint64, *core.Packet) { return s.last, s.delivered }

// Deliveries returns how many frames were delivered.
func (s *Stream) Deliveries() uint64 { return s.count }

// LastStatus returns the outcome of the most recent selection.
func (s *Stream) LastStatus() core.Status { return s.status }

// Name returns the stream name.
func (s *Stream) Name() string { return s.cfg.Name }

// Session returns the session id stamped on metadata records.
func (s *Stream) Session() string { return s.session }

// Closed reports whether the stream was closed or lost.
func (s *Stream) Closed() bool { return s.closed }
