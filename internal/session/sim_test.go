package session

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/analyzer/sim"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/saver"
)

// writeCapture writes n samples of a slow ramp as a raw capture file.
func writeCapture(t *testing.T, n int) string {
	t.Helper()
	buf := make([]byte, n*saver.BytesPerSample)
	for i := range n {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(float32(i)/float32(n)))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(-float32(i)/float32(n)))
	}
	path := filepath.Join(t.TempDir(), "replay.raw")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestFileReplayRecordsAndHaltsAtEndOfStream(t *testing.T) {
	t.Parallel()

	const samples = 9600
	cfg := recordConfig(t)
	cfg.Profile = analyzer.Profile{
		Label:      "replay",
		Type:       analyzer.SourceFile,
		Path:       writeCapture(t, samples),
		SampleRate: 96000,
		Frequency:  433.92e6,
	}
	cfg.Params = analyzer.Params{FFTSize: 256, PSDRate: 50, ChunkSize: 960}

	pub := &recordingPublisher{}
	quiet := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	ctrl, err := New(cfg, sim.NewFactory(sim.WithLogger(quiet)),
		WithPublisher(pub),
		WithLogTail(&fakeTail{}),
		WithAudioOpener(&fakeOpener{}),
		WithLogger(quiet))
	require.NoError(t, err)
	h := &harness{ctrl: ctrl, pub: pub}

	ctx := t.Context()
	go func() { _ = ctrl.Run(ctx) }()
	t.Cleanup(func() { <-ctrl.Done() })

	require.NoError(t, ctrl.Start(ctx))
	h.waitState(t, Running)

	require.Eventually(t, func() bool {
		s, err := ctrl.State(ctx)
		return err == nil && s == Halted
	}, 5*time.Second, 10*time.Millisecond, "replay reaches end of stream")

	notices := eventsOf[events.Notice](pub)
	require.Len(t, notices, 1)
	assert.Equal(t, events.SeverityWarning, notices[0].Severity)
	assert.NotEmpty(t, eventsOf[events.PSDFrame](pub))

	info, err := os.Stat(filepath.Join(cfg.Source.RecordDir, saver.CaptureFileName(96000, 433.92e6)))
	require.NoError(t, err)
	assert.Equal(t, int64(samples*saver.BytesPerSample), info.Size(), "every replayed sample is recorded")
}
