package metadata

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/log"
)

// Reporter ships metadata records. Implementations are safe for concurrent
// use by several streams.
type Reporter interface {
	Name() string
	Report(ctx context.Context, r Record) error
	Close() error
}

// New creates the reporter selected by cfg.Reporter.
func New(cfg config.MetadataConfig) (Reporter, error) {
	switch cfg.Reporter {
	case "", "none":
		return Discard, nil
	case "console":
		return NewConsole(os.Stdout, cfg.Format), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("file reporter requires a path")
		}
		return newFileReporter(cfg.Path, cfg.Format), nil
	case "kafka":
		return newKafka(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported metadata reporter: %s", cfg.Reporter)
	}
}

// Discard drops every record.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Name() string                          { return "none" }
func (discard) Report(context.Context, Record) error { return nil }
func (discard) Close() error                          { return nil }

// console writes one encoded record per entry; yaml entries are separated
// by document markers.
type console struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

// NewConsole creates a reporter writing to w.
func NewConsole(w io.Writer, format string) Reporter {
	return &console{w: w, format: format}
}

func (c *console) Name() string { return "console" }

func (c *console) Report(_ context.Context, r Record) error {
	b, err := Encode(c.format, r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.format == "yaml" {
		if _, err := io.WriteString(c.w, "---\n"); err != nil {
			return err
		}
	} else {
		b = append(b, '\n')
	}
	_, err = c.w.Write(b)
	return err
}

func (c *console) Close() error { return nil }

// fileReporter keeps the latest record of each stream in its own file.
// Report only queues the record; a background goroutine writes it, so disk
// latency never lands on a tick. Records superseded before they are written
// are skipped. Readers never observe a partially written file.
type fileReporter struct {
	path   string
	format string

	mu      sync.Mutex
	pending map[string]Record
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	failures atomic.Uint64
}

func newFileReporter(path, format string) *fileReporter {
	f := &fileReporter{
		path:    path,
		format:  format,
		pending: make(map[string]Record),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *fileReporter) Name() string { return "file" }

// Path returns the file that records of stream are written to.
func (f *fileReporter) Path(stream string) string {
	return strings.ReplaceAll(f.path, "%s", stream)
}

func (f *fileReporter) Report(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("file reporter closed")
	}
	f.pending[r.Stream] = r
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *fileReporter) loop() {
	defer close(f.done)
	for range f.wake {
		f.flush()
	}
	f.flush()
}

func (f *fileReporter) flush() {
	f.mu.Lock()
	batch := f.pending
	f.pending = make(map[string]Record, len(batch))
	f.mu.Unlock()

	for _, r := range batch {
		if err := f.write(r); err != nil {
			f.failures.Add(1)
			log.GetLogger().WithField("stream", r.Stream).WithError(err).
				Warnf("write metadata of frame %d", r.Framestamp)
		}
	}
}

func (f *fileReporter) write(r Record) error {
	b, err := Encode(f.format, r)
	if err != nil {
		return err
	}
	target := f.Path(r.Stream)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace metadata file: %w", err)
	}
	return nil
}

// Close writes whatever is still queued and stops the writer. Idempotent.
func (f *fileReporter) Close() error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.wake)
	}
	f.mu.Unlock()
	<-f.done
	return nil
}

// Failures returns the number of records that could not be written.
func (f *fileReporter) Failures() uint64 { return f.failures.Load() }
