package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/source/sourcetest"
)

func startProducer(t *testing.T, capacity int) (*Producer, *sourcetest.Source) {
	t.Helper()
	src := sourcetest.New(t)
	p := New(Config{Name: "test", Capacity: capacity})
	require.NoError(t, p.Configure(src))
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p, src
}

func waitReceived(t *testing.T, p *Producer, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Received() >= n },
		2*time.Second, time.Millisecond)
}

func TestStart_RequiresConfigure(t *testing.T) {
	p := New(Config{Capacity: 4})
	assert.ErrorIs(t, p.Start(context.Background()), core.ErrNotConfigured)
	// Wait on a never started producer must not block.
	p.Wait()
}

func TestStart_Twice(t *testing.T) {
	p, src := startProducer(t, 4)
	assert.ErrorIs(t, p.Start(context.Background()), core.ErrAlreadyStarted)
	assert.ErrorIs(t, p.Configure(src), core.ErrAlreadyStarted)
}

func TestSink_LatestDeliversEachPacketOnce(t *testing.T) {
	p, src := startProducer(t, 8)
	sink, err := p.Attach(0)
	require.NoError(t, err)
	assert.Equal(t, 8, sink.Capacity())

	assert.Equal(t, core.StatusNotAvailable, sink.Latest().Status)

	src.Send(t, 100, 200)
	waitReceived(t, p, 2)

	res := sink.Latest()
	require.True(t, res.Found())
	assert.Equal(t, uint64(2), res.Sequence)
	assert.Equal(t, uint64(200), res.Packet.Timestamp)
	assert.Equal(t, core.StatusNotAvailable, sink.Latest().Status)
	assert.Equal(t, uint64(2), sink.Last())
}

func TestSink_NearestAndBuffered(t *testing.T) {
	p, src := startProducer(t, 3)
	sink, err := p.Attach(3)
	require.NoError(t, err)

	src.Send(t, 10, 20, 30, 40)
	waitReceived(t, p, 4)
	assert.Equal(t, uint64(1), p.Evicted())

	res := sink.Nearest(21)
	require.True(t, res.Found())
	assert.Equal(t, uint64(20), res.Packet.Timestamp)

	// Selection by criterion other than Latest may repeat.
	res = sink.Nearest(21)
	require.True(t, res.Found())

	assert.Equal(t, core.StatusEvicted, sink.Buffered(1).Status)
	assert.Equal(t, core.StatusNotAvailable, sink.Buffered(5).Status)
	res = sink.Buffered(4)
	require.True(t, res.Found())
	assert.Equal(t, uint64(40), res.Packet.Timestamp)
}

func TestSink_WindowSmallerThanProducer(t *testing.T) {
	p, src := startProducer(t, 8)
	sink, err := p.Attach(2)
	require.NoError(t, err)

	src.Send(t, 10, 20, 30, 40)
	waitReceived(t, p, 4)

	// Sequence 2 is still in the shared history but outside the sink window.
	assert.Equal(t, core.StatusEvicted, sink.Buffered(2).Status)
	res := sink.Nearest(0)
	require.True(t, res.Found())
	assert.Equal(t, uint64(30), res.Packet.Timestamp)
}

func TestSinks_IndependentCursors(t *testing.T) {
	const total = 200
	p, src := startProducer(t, 16)

	fast, err := p.Attach(16)
	require.NoError(t, err)
	slow, err := p.Attach(4)
	require.NoError(t, err)

	go func() {
		for i := uint64(1); i <= total; i++ {
			src.Send(t, i)
			if i%10 == 0 {
				time.Sleep(time.Millisecond)
			}
		}
	}()

	var wg sync.WaitGroup
	read := func(s *Sink, cadence time.Duration, out *[]uint64) {
		defer wg.Done()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if res := s.Latest(); res.Found() {
				*out = append(*out, res.Sequence)
				if res.Sequence == total {
					return
				}
			}
			time.Sleep(cadence)
		}
	}
	var fastSeen, slowSeen []uint64
	wg.Add(2)
	go read(fast, 100*time.Microsecond, &fastSeen)
	go read(slow, 3*time.Millisecond, &slowSeen)
	wg.Wait()

	for _, seen := range [][]uint64{fastSeen, slowSeen} {
		require.NotEmpty(t, seen)
		assert.Equal(t, uint64(total), seen[len(seen)-1])
		for i := 1; i < len(seen); i++ {
			assert.Greater(t, seen[i], seen[i-1])
		}
	}
	assert.Greater(t, len(fastSeen), len(slowSeen))
}

func TestStop_NoAppendAfterStop(t *testing.T) {
	p, src := startProducer(t, 8)
	sink, err := p.Attach(8)
	require.NoError(t, err)

	src.Send(t, 1, 2, 3)
	waitReceived(t, p, 3)

	p.Stop()
	src.Send(t, 4, 5)
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after Stop")
	}

	assert.Equal(t, uint64(3), p.Newest())
	assert.NoError(t, p.Err())

	// History stays readable after stop.
	res := sink.Latest()
	require.True(t, res.Found())
	assert.Equal(t, uint64(3), res.Sequence)

	_, err = p.Attach(1)
	assert.ErrorIs(t, err, core.ErrStopped)

	sink.Detach()
	sink.Detach()
	assert.Equal(t, 0, p.Sinks())
	assert.Equal(t, core.StatusNotAvailable, sink.Latest().Status)
}

func TestContextCancelStops(t *testing.T) {
	src := sourcetest.New(t)
	p := New(Config{Capacity: 2})
	require.NoError(t, p.Configure(src))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))

	cancel()
	require.Eventually(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.stopped
	}, 2*time.Second, time.Millisecond)
	_ = src.Close()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after cancel")
	}
	assert.NoError(t, p.Err())
}

func TestSourceLost(t *testing.T) {
	p, src := startProducer(t, 4)
	sink, err := p.Attach(4)
	require.NoError(t, err)

	src.Send(t, 7)
	waitReceived(t, p, 1)
	src.Hangup()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after hangup")
	}
	require.Error(t, p.Err())
	assert.True(t, errors.Is(p.Err(), core.ErrSourceLost))
	assert.Equal(t, core.StatusSourceLost, sink.Latest().Status)
	assert.Equal(t, core.StatusSourceLost, sink.Buffered(1).Status)
}

func TestClose_UnblocksReceive(t *testing.T) {
	p, src := startProducer(t, 4)
	require.NoError(t, p.Close())
	assert.True(t, src.Closed())
	assert.NoError(t, p.Err())
	// Close is idempotent.
	require.NoError(t, p.Close())
}

func TestClose_ReleasesContextCallback(t *testing.T) {
	src := sourcetest.New(t)
	p := New(Config{Capacity: 2})
	require.NoError(t, p.Configure(src))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))

	p.mu.RLock()
	assert.NotNil(t, p.release)
	p.mu.RUnlock()

	require.NoError(t, p.Close())
	p.mu.RLock()
	assert.Nil(t, p.release)
	p.mu.RUnlock()

	// Cancelling after Close must not touch the closed producer.
	cancel()
	assert.NoError(t, p.Err())
}
