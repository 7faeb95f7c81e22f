package api

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/session"
)

// fakeSession records calls and answers with a fixed snapshot.
type fakeSession struct {
	mu    sync.Mutex
	calls []string
	err   map[string]error
	snap  session.Snapshot

	audio     session.AudioConfig
	inspector session.InspectorConfig
	profile   analyzer.Profile
	params    analyzer.Params
	closedTag analyzer.InspectorID
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		err:  map[string]error{},
		snap: session.Snapshot{State: "halted"},
	}
}

func (f *fakeSession) record(name string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := name
	if len(args) > 0 {
		call += fmt.Sprint(args...)
	}
	f.calls = append(f.calls, call)
	return f.err[name]
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) Start(context.Context) error   { return f.record("start") }
func (f *fakeSession) Stop(context.Context) error    { return f.record("stop") }
func (f *fakeSession) Restart(context.Context) error { return f.record("restart") }

func (f *fakeSession) Snapshot(context.Context) (session.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err["snapshot"]
}

func (f *fakeSession) SetProfile(_ context.Context, p analyzer.Profile) error {
	f.mu.Lock()
	f.profile = p
	f.mu.Unlock()
	return f.record("profile")
}

func (f *fakeSession) SetFrequency(_ context.Context, freq, lnb float64) error {
	return f.record("frequency", freq, "/", lnb)
}

func (f *fakeSession) SetGain(_ context.Context, name string, value float64) error {
	return f.record("gain", name, "=", value)
}

func (f *fakeSession) SetAntenna(_ context.Context, name string) error {
	return f.record("antenna", name)
}

func (f *fakeSession) SetSourceBandwidth(_ context.Context, bw float64) error {
	return f.record("source_bandwidth", bw)
}

func (f *fakeSession) SetDCRemove(_ context.Context, on bool) error {
	return f.record("dc_remove", on)
}

func (f *fakeSession) SetIQReverse(_ context.Context, on bool) error {
	return f.record("iq_reverse", on)
}

func (f *fakeSession) SetAGC(_ context.Context, on bool) error { return f.record("agc", on) }

func (f *fakeSession) SetThrottle(_ context.Context, on bool, rate uint32) error {
	return f.record("throttle", on, "@", rate)
}

func (f *fakeSession) SetParams(_ context.Context, p analyzer.Params) error {
	f.mu.Lock()
	f.params = p
	f.mu.Unlock()
	return f.record("params")
}

func (f *fakeSession) SetRecord(_ context.Context, on bool, dir string) error {
	return f.record("record", on, " ", dir)
}

func (f *fakeSession) SetAudio(_ context.Context, cfg session.AudioConfig) error {
	f.mu.Lock()
	f.audio = cfg
	f.mu.Unlock()
	return f.record("audio")
}

func (f *fakeSession) SetCursor(_ context.Context, lo float64) error {
	return f.record("cursor", lo)
}

func (f *fakeSession) SetDisplayBandwidth(_ context.Context, bw float64) error {
	return f.record("display_bandwidth", bw)
}

func (f *fakeSession) OpenInspector(_ context.Context, req session.InspectorConfig) error {
	f.mu.Lock()
	f.inspector = req
	f.mu.Unlock()
	return f.record("open_inspector")
}

func (f *fakeSession) CloseInspector(_ context.Context, tag analyzer.InspectorID) error {
	f.mu.Lock()
	f.closedTag = tag
	f.mu.Unlock()
	return f.record("close_inspector")
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func newTestServer(t *testing.T, sess Session, opts ...ServerOption) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s, err := New(cfg, sess, append([]ServerOption{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Hub().Close)
	return s
}
