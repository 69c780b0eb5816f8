package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/pipeline"
	"firestige.xyz/vrtbridge/internal/sink"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()

	data := make([]int, 0, frames*2)
	for i := 0; i < frames; i++ {
		data = append(data, i*8, -i*8)
	}
	enc := wav.NewEncoder(fh, 8000, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

// fileConfig converts a WAV recording into a raw packet file once.
func fileConfig(wavPath, outPath string) string {
	return `
vrt-bridge:
  log:
    level: "warn"
  metrics:
    enabled: false
  iq_input:
    type: "file"
    file:
      file_path: "` + wavPath + `"
      loop: false
      pace: false
  packetizer:
    frequency: 401500000
    bandwidth: 500000
    sample_rate: 1000000
    sample_count: 16
    context_emission_frequency: 0
  vrt_output:
    type: "file"
    options:
      path: "` + outPath + `"
`
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yml", fileConfig(filepath.Join(dir, "in.wav"), filepath.Join(dir, "out.vrt")))

	var buf bytes.Buffer
	require.NoError(t, runValidate(good, true, &buf))
	assert.Contains(t, buf.String(), "VALID: file input -> file output, 16 pairs/packet at 1000000 samples/s")

	// The printed configuration loads back.
	printed := buf.String()[bytes.IndexByte(buf.Bytes(), '\n')+1:]
	var round map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(printed), &round))
	assert.Contains(t, round["vrt-bridge"], "packetizer")

	bad := writeFile(t, dir, "bad.yml", `
vrt-bridge:
  iq_input:
    type: "endpoint"
    endpoint:
      address: "127.0.0.1:5000"
      bit_resolution: 10
  packetizer:
    sample_rate: 1000
    sample_count: 16
`)
	buf.Reset()
	err := runValidate(bad, false, &buf)
	assert.ErrorContains(t, err, "INVALID")
	assert.Empty(t, buf.String())
}

func TestRunStart_ConvertsFileAndInspects(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.vrt")
	pidPath := filepath.Join(dir, "vb.pid")
	writeWAV(t, wavPath, 64)
	cfgPath := writeFile(t, dir, "bridge.yml", fileConfig(wavPath, outPath))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runStart(ctx, cfgPath, pidPath, time.Second))

	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err), "PID file must be removed on exit")

	var buf bytes.Buffer
	require.NoError(t, runInspect(outPath, "auto", 0, 0, &buf))
	assert.Contains(t, buf.String(), "4 packets: 4 data, 0 context, 0 malformed")
	assert.Contains(t, buf.String(), "oui=0x7C386C info=22065 packet=3")

	buf.Reset()
	require.NoError(t, runInspect(outPath, "raw", 0, 2, &buf))
	assert.Contains(t, buf.String(), "2 packets: 2 data")
}

func TestRunStart_BadConfig(t *testing.T) {
	err := runStart(context.Background(), filepath.Join(t.TempDir(), "absent.yml"), "", time.Second)
	assert.ErrorContains(t, err, "failed to load config")
}

func TestRunInspect_Pcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	s, err := sink.NewPcap(sink.PcapOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))

	ctxPacket, err := pipeline.NewContextPacket(500000, 401500000, 562500, time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NoError(t, s.Write(core.Frame{Kind: core.FrameContext, Bytes: ctxPacket}))
	require.NoError(t, s.Write(core.Frame{Kind: core.FrameData, Bytes: []byte{0x00, 0x00, 0x00, 0x01}}))
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	require.NoError(t, runInspect(path, "auto", 0, 0, &buf))
	out := buf.String()
	assert.Contains(t, out, "Context(bandwidth=500000, frequency=401500000, sample_rate=562500, timestamp=1700000000)")
	assert.Contains(t, out, "2 packets: 1 data, 1 context, 0 malformed")

	buf.Reset()
	require.NoError(t, runInspect(path, "pcap", 5000, 0, &buf))
	assert.Contains(t, buf.String(), "0 packets")
}

func TestRunInspect_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, runInspect(filepath.Join(dir, "absent.vrt"), "auto", 0, 0, &bytes.Buffer{}))

	path := writeFile(t, dir, "x.vrt", "")
	assert.ErrorContains(t, runInspect(path, "json", 0, 0, &bytes.Buffer{}), "unknown format")

	// Header announces two words but only one is present.
	truncated := writeFile(t, dir, "t.vrt", string([]byte{0x18, 0xE0, 0x00, 0x02}))
	assert.Error(t, runInspect(truncated, "raw", 0, 0, &bytes.Buffer{}))
}

const exposition = `# HELP vrt_bridge_packets_total Total number of VRT packets handed to the output
# TYPE vrt_bridge_packets_total counter
vrt_bridge_packets_total{kind="data"} 1200
vrt_bridge_packets_total{kind="context"} 3
# HELP vrt_bridge_send_interval_seconds Interval between data packet sends
# TYPE vrt_bridge_send_interval_seconds histogram
vrt_bridge_send_interval_seconds_bucket{le="+Inf"} 4
vrt_bridge_send_interval_seconds_sum 0.008
vrt_bridge_send_interval_seconds_count 4
# HELP go_goroutines Number of goroutines that currently exist.
# TYPE go_goroutines gauge
go_goroutines 12
`

func TestRunStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exposition))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	require.NoError(t, runStats(context.Background(), srv.URL, &buf))
	out := buf.String()
	assert.Contains(t, out, "packets_total")
	assert.Contains(t, out, "kind=data")
	assert.Contains(t, out, "1200")
	assert.Contains(t, out, "count=4 mean=0.002")
	assert.NotContains(t, out, "goroutines")
}

func TestRunStats_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	assert.Error(t, runStats(context.Background(), srv.URL, &bytes.Buffer{}))
}

func TestScrapeURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9091/metrics", scrapeURL(":9091", "/metrics"))
	assert.Equal(t, "http://10.1.2.3:9000/m", scrapeURL("10.1.2.3:9000", "/m"))
}
