package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/saver"
)

func recordConfig(t *testing.T) Config {
	t.Helper()
	cfg := testConfig()
	cfg.Source.Record = true
	cfg.Source.RecordDir = t.TempDir()
	cfg.Writer.ReportPeriod = 5 * time.Millisecond
	return cfg
}

func TestRecordingWritesCaptureFile(t *testing.T) {
	t.Parallel()

	cfg := recordConfig(t)
	h := newHarness(t, cfg)
	ctx := t.Context()

	require.NoError(t, h.ctrl.Start(ctx))
	a := h.factory.last()
	want := filepath.Join(cfg.Source.RecordDir, saver.CaptureFileName(250000, 100e6))

	changes := eventsOf[events.RecordChanged](h.pub)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Enabled)
	assert.Equal(t, want, changes[0].Path)

	a.feed(make([]complex64, 16))
	require.Eventually(t, func() bool {
		return h.snapshot(t).CaptureBytes == 16*saver.BytesPerSample
	}, 2*time.Second, 5*time.Millisecond)

	sizes := eventsOf[events.CaptureSize](h.pub)
	require.NotEmpty(t, sizes)
	assert.Equal(t, uint64(16*saver.BytesPerSample), sizes[len(sizes)-1].Bytes)

	require.NoError(t, h.ctrl.Stop(ctx))
	h.waitState(t, Halted)
	assert.False(t, h.snapshot(t).Recording)

	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.Equal(t, int64(16*saver.BytesPerSample), info.Size())
	assert.Equal(t, saver.CaptureFileMode, info.Mode().Perm())
}

func TestRecordingUnwritableDirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Source.Record = true
	h := newHarness(t, cfg)

	require.NoError(t, h.ctrl.Start(t.Context()), "capture goes on unrecorded")
	h.waitState(t, Running)

	notices := eventsOf[events.Notice](h.pub)
	require.Len(t, notices, 1)
	assert.Equal(t, events.SeverityWarning, notices[0].Severity)
	assert.Equal(t, "Failed to open capture file", notices[0].Title)

	snap := h.snapshot(t)
	assert.False(t, snap.Recording)
	assert.True(t, snap.Source.Record, "the record flag is left as the user set it")
	assert.Empty(t, h.factory.last().callsOf("register_filter"))
}

func TestRecordingHookInstalledOncePerAnalyzer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, recordConfig(t))
	ctx := t.Context()
	require.NoError(t, h.ctrl.Start(ctx))
	a := h.factory.last()

	for range 3 {
		require.NoError(t, h.ctrl.SetRecord(ctx, false, ""))
		assert.False(t, h.snapshot(t).Recording)
		require.NoError(t, h.ctrl.SetRecord(ctx, true, ""))
		assert.True(t, h.snapshot(t).Recording)
	}
	assert.Equal(t, 1, a.hookCount())
	assert.True(t, h.snapshot(t).HookInstalled)

	require.NoError(t, h.ctrl.Restart(ctx))
	require.Eventually(t, func() bool { return h.factory.count() == 2 }, time.Second, time.Millisecond)
	h.waitState(t, Running)
	assert.Equal(t, 1, h.factory.last().hookCount(), "a new analyzer gets its own hook")
}

func TestRecordingEnabledWhileHalted(t *testing.T) {
	t.Parallel()

	cfg := recordConfig(t)
	cfg.Source.Record = false
	h := newHarness(t, cfg)
	ctx := t.Context()

	require.NoError(t, h.ctrl.SetRecord(ctx, true, ""))
	assert.False(t, h.snapshot(t).Recording, "no writer without a capture")
	assert.Zero(t, h.factory.count())

	require.NoError(t, h.ctrl.Start(ctx))
	assert.True(t, h.snapshot(t).Recording)
}

func TestRecordingSwampedClearsFlagOnce(t *testing.T) {
	t.Parallel()

	cfg := recordConfig(t)
	cfg.Writer.BufferSize = 16
	cfg.Writer.ReportPeriod = time.Hour
	h := newHarness(t, cfg)
	ctx := t.Context()

	require.NoError(t, h.ctrl.Start(ctx))
	a := h.factory.last()

	a.feed(make([]complex64, 3))
	require.Eventually(t, func() bool { return !h.snapshot(t).Recording }, 2*time.Second, time.Millisecond)

	// the dead writer is gone, more samples must not raise another notice
	a.feed(make([]complex64, 3))
	_ = h.snapshot(t)

	notices := eventsOf[events.Notice](h.pub)
	require.Len(t, notices, 1)
	assert.Equal(t, "Capture thread swamped", notices[0].Title)

	var disabled int
	for _, e := range eventsOf[events.RecordChanged](h.pub) {
		if !e.Enabled {
			disabled++
		}
	}
	assert.Equal(t, 1, disabled)

	snap := h.snapshot(t)
	assert.False(t, snap.Source.Record)
	assert.Zero(t, snap.CaptureBytes)
	assert.Equal(t, Running, mustState(t, h), "the capture keeps running")
}

func mustState(t *testing.T, h *harness) State {
	t.Helper()
	s, err := h.ctrl.State(t.Context())
	require.NoError(t, err)
	return s
}
