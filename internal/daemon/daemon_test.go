package daemon

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/core"
	"firestige.xyz/framestream/internal/log"
	"firestige.xyz/framestream/internal/metadata"
	"firestige.xyz/framestream/internal/source"
)

// serveFrames accepts one connection and writes a frame per timestamp.
// The connection stays open until the test ends unless hangup is set.
func serveFrames(t *testing.T, hangup bool, timestamps ...uint64) string {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		for _, ts := range timestamps {
			if err := source.WriteFrame(c, &core.Packet{Timestamp: ts, Payload: []byte{1}}); err != nil {
				break
			}
		}
		if hangup {
			c.Close()
			return
		}
		conns <- c
	}()
	t.Cleanup(func() {
		select {
		case c := <-conns:
			c.Close()
		default:
		}
	})
	return ln.Addr().String()
}

func testConfig(t *testing.T, streams ...config.StreamConfig) *config.GlobalConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Metadata.Reporter = "file"
	cfg.Metadata.Path = filepath.Join(t.TempDir(), "%s.json")
	cfg.Streams = streams
	require.NoError(t, cfg.ValidateAndApplyDefaults())
	t.Cleanup(func() { _ = log.Init(config.LogConfig{Level: "info"}) })
	return cfg
}

func readRecord(path string) (metadata.Record, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return metadata.Record{}, false
	}
	var r metadata.Record
	if json.Unmarshal(b, &r) != nil {
		return metadata.Record{}, false
	}
	return r, true
}

func TestDaemon_StreamsDeliverAndReport(t *testing.T) {
	pvAddr := serveFrames(t, false, 100, 200, 300)
	depthAddr := serveFrames(t, false, 190, 290)

	cfg := testConfig(t,
		config.StreamConfig{Name: "pv", Address: pvAddr, Mode: "async", TickInterval: 2 * time.Millisecond},
		config.StreamConfig{Name: "depth", Address: depthAddr, Picker: "nearest", Reference: "pv", TickInterval: 2 * time.Millisecond},
	)

	d := NewWithConfig(cfg)
	require.NoError(t, d.Start())
	defer d.Stop()
	require.Len(t, d.Streams(), 2)

	pvPath := strings.ReplaceAll(cfg.Metadata.Path, "%s", "pv")
	depthPath := strings.ReplaceAll(cfg.Metadata.Path, "%s", "depth")

	require.Eventually(t, func() bool {
		r, ok := readRecord(pvPath)
		return ok && r.Timestamp == 300
	}, 3*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		r, ok := readRecord(depthPath)
		return ok && r.Timestamp == 290
	}, 3*time.Second, 5*time.Millisecond)

	ref := d.Board().Reference("pv")
	require.NotNil(t, ref)
	assert.Equal(t, uint64(300), ref.Timestamp())

	pv, _ := readRecord(pvPath)
	depth, _ := readRecord(depthPath)
	assert.NotEmpty(t, pv.Session)
	assert.NotEqual(t, pv.Session, depth.Session)
}

func TestDaemon_RunReturnsWhenAllStreamsEnd(t *testing.T) {
	addr := serveFrames(t, true, 1, 2)
	cfg := testConfig(t, config.StreamConfig{Name: "vlc", Address: addr, TickInterval: time.Millisecond})

	d := NewWithConfig(cfg)
	require.NoError(t, d.Start())

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run() }()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		d.Stop()
		t.Fatal("Run did not return after the stream was lost")
	}
	assert.True(t, d.Streams()[0].Closed())
}

func TestDaemon_UnreachableStreamEnds(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t, config.StreamConfig{Name: "imu", Address: addr, DialTimeout: 200 * time.Millisecond})
	d := NewWithConfig(cfg)
	require.NoError(t, d.Start())
	select {
	case <-d.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stream goroutine did not exit")
	}
	d.Stop()
	d.Stop()
}

func TestDaemon_PIDFileAndReload(t *testing.T) {
	dir := t.TempDir()
	addr := serveFrames(t, false, 1)
	configPath := filepath.Join(dir, "framestream.yml")
	write := func(level string) {
		content := `
framestream:
  log:
    level: ` + level + `
  streams:
    - name: vlc
      address: ` + addr + `
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	}
	write("info")
	t.Cleanup(func() { _ = log.Init(config.LogConfig{Level: "info"}) })

	pidFile := filepath.Join(dir, "framestream.pid")
	d, err := New(configPath, pidFile)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(b)))
	assert.False(t, log.GetLogger().IsDebugEnabled())

	write("debug")
	require.NoError(t, d.Reload())
	assert.True(t, log.GetLogger().IsDebugEnabled())

	write("verbose")
	assert.Error(t, d.Reload())

	d.Stop()
	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yml"), "")
	assert.Error(t, err)
}

func TestReload_WithoutFile(t *testing.T) {
	d := NewWithConfig(config.Default())
	assert.Error(t, d.Reload())
	d.Stop()
}
