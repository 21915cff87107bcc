package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/core"
)

func pvPayload(fx, fy, cx, cy float32) []byte {
	b := []byte{0xAA, 0xBB}
	for _, v := range []float32{fx, fy, cx, cy} {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func TestBuild(t *testing.T) {
	pose := &core.Pose{1, 0, 0, 0, 0, 1}
	p := &core.Packet{Timestamp: 1234, Payload: pvPayload(500, 501, 320, 240), Pose: pose}

	t.Run("generic", func(t *testing.T) {
		r := Build("generic", "vlc0", "s1", 9, p)
		assert.Equal(t, uint64(9), r.Framestamp)
		assert.Equal(t, uint64(1234), r.Timestamp)
		assert.Same(t, pose, r.Pose)
		assert.Equal(t, "vlc0", r.Stream)
		assert.Equal(t, "s1", r.Session)
		assert.Nil(t, r.FocalLength)
		assert.Nil(t, r.PrincipalPoint)
	})

	t.Run("pv intrinsics", func(t *testing.T) {
		r := Build(ModalityPV, "pv", "s1", 1, p)
		require.NotNil(t, r.FocalLength)
		require.NotNil(t, r.PrincipalPoint)
		assert.Equal(t, [2]float32{500, 501}, *r.FocalLength)
		assert.Equal(t, [2]float32{320, 240}, *r.PrincipalPoint)
	})

	t.Run("pv short payload", func(t *testing.T) {
		r := Build(ModalityPV, "pv", "s1", 1, &core.Packet{Payload: []byte{1, 2, 3}})
		assert.Nil(t, r.FocalLength)
	})
}

func TestEncode(t *testing.T) {
	r := Record{Framestamp: 3, Timestamp: 30, Stream: "depth", Session: "abc"}

	b, err := Encode("json", r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"framestamp":3,"timestamp":30,"stream":"depth","session":"abc"}`, string(b))

	b, err = Encode("yaml", r)
	require.NoError(t, err)
	var back Record
	require.NoError(t, yaml.Unmarshal(b, &back))
	assert.Equal(t, r, back)
	assert.NotContains(t, string(b), "pose")

	_, err = Encode("xml", r)
	assert.Error(t, err)
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, "json")
	require.NoError(t, c.Report(context.Background(), Record{Framestamp: 1, Stream: "a"}))
	require.NoError(t, c.Report(context.Background(), Record{Framestamp: 2, Stream: "a"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var r Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r))
	assert.Equal(t, uint64(2), r.Framestamp)

	buf.Reset()
	y := NewConsole(&buf, "yaml")
	require.NoError(t, y.Report(context.Background(), Record{Framestamp: 5}))
	assert.True(t, strings.HasPrefix(buf.String(), "---\n"))
	assert.Contains(t, buf.String(), "framestamp: 5")
}

func TestFileReporter_KeepsLatestPerStream(t *testing.T) {
	dir := t.TempDir()
	rep, err := New(config.MetadataConfig{
		Reporter: "file",
		Format:   "json",
		Path:     filepath.Join(dir, "%s.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file", rep.Name())

	ctx := context.Background()
	require.NoError(t, rep.Report(ctx, Record{Framestamp: 1, Stream: "pv"}))
	require.NoError(t, rep.Report(ctx, Record{Framestamp: 2, Stream: "pv"}))
	require.NoError(t, rep.Report(ctx, Record{Framestamp: 7, Stream: "depth"}))
	// Close drains the queue.
	require.NoError(t, rep.Close())
	require.NoError(t, rep.Close())
	assert.Error(t, rep.Report(ctx, Record{Framestamp: 3, Stream: "pv"}))

	read := func(name string) Record {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		var r Record
		require.NoError(t, json.Unmarshal(b, &r))
		return r
	}
	assert.Equal(t, uint64(2), read("pv.json").Framestamp)
	assert.Equal(t, uint64(7), read("depth.json").Framestamp)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileReporter_WritesInBackground(t *testing.T) {
	dir := t.TempDir()
	rep := newFileReporter(filepath.Join(dir, "%s.yaml"), "yaml")
	defer rep.Close()

	require.NoError(t, rep.Report(context.Background(), Record{Framestamp: 4, Stream: "vlc"}))
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(filepath.Join(dir, "vlc.yaml"))
		return err == nil && strings.Contains(string(b), "framestamp: 4")
	}, 2*time.Second, time.Millisecond)
}

func TestFileReporter_MissingDirectory(t *testing.T) {
	rep := newFileReporter(filepath.Join(t.TempDir(), "missing", "%s.json"), "json")

	// Write errors surface asynchronously, never on the reporting goroutine.
	assert.NoError(t, rep.Report(context.Background(), Record{Stream: "x"}))
	require.NoError(t, rep.Close())
	assert.Equal(t, uint64(1), rep.Failures())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.MetadataConfig
		wantName string
		wantErr  bool
	}{
		{name: "default", cfg: config.MetadataConfig{}, wantName: "none"},
		{name: "none", cfg: config.MetadataConfig{Reporter: "none"}, wantName: "none"},
		{name: "console", cfg: config.MetadataConfig{Reporter: "console", Format: "yaml"}, wantName: "console"},
		{name: "file without path", cfg: config.MetadataConfig{Reporter: "file"}, wantErr: true},
		{name: "unknown", cfg: config.MetadataConfig{Reporter: "mqtt"}, wantErr: true},
		{
			name: "kafka",
			cfg: config.MetadataConfig{Reporter: "kafka", Kafka: config.KafkaConfig{
				Brokers: []string{"localhost:9092"}, Topic: "frames", Compression: "lz4",
			}},
			wantName: "kafka",
		},
		{
			name: "kafka without topic",
			cfg: config.MetadataConfig{Reporter: "kafka", Kafka: config.KafkaConfig{
				Brokers: []string{"localhost:9092"},
			}},
			wantErr: true,
		},
		{
			name: "kafka without brokers",
			cfg: config.MetadataConfig{Reporter: "kafka", Kafka: config.KafkaConfig{
				Topic: "frames",
			}},
			wantErr: true,
		},
		{
			name: "kafka invalid compression",
			cfg: config.MetadataConfig{Reporter: "kafka", Kafka: config.KafkaConfig{
				Brokers: []string{"localhost:9092"}, Topic: "frames", Compression: "brotli",
			}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, rep.Name())
			assert.NoError(t, rep.Close())
		})
	}
}

func TestCompressionCodec(t *testing.T) {
	for _, name := range []string{"", "none", "gzip", "snappy", "lz4", "zstd"} {
		_, err := compressionCodec(name)
		assert.NoError(t, err, name)
	}
	_, err := compressionCodec("deflate")
	assert.Error(t, err)
}
