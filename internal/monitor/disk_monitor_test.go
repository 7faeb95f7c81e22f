package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sigscope/sigscope/internal/notification"
	"github.com/sigscope/sigscope/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []*notification.Notification
}

func (r *recordingNotifier) Add(n *notification.Notification) *notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return n
}

func (r *recordingNotifier) priorities() []notification.Priority {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Priority, 0, len(r.got))
	for _, n := range r.got {
		out = append(out, n.Priority)
	}
	return out
}

type fakeDisk struct {
	mu   sync.Mutex
	used float64
}

func (f *fakeDisk) set(v float64) {
	f.mu.Lock()
	f.used = v
	f.mu.Unlock()
}

func (f *fakeDisk) usage(string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used, nil
}

func testConfig() Config {
	return Config{
		Interval:       10 * time.Millisecond,
		Warning:        80,
		Critical:       90,
		Hysteresis:     5,
		ResendInterval: time.Hour,
	}
}

func staticPath(dir string) PathFunc {
	return func(context.Context) (string, error) { return dir, nil }
}

func TestThresholdTransitions(t *testing.T) {
	t.Parallel()

	disk := &fakeDisk{}
	rec := &recordingNotifier{}
	m := New(testConfig(), staticPath("/captures"), rec, WithUsageFunc(disk.usage))
	ctx := t.Context()

	steps := []float64{50, 82, 85, 92, 95, 86, 84, 76, 74}
	for _, v := range steps {
		disk.set(v)
		require.NoError(t, m.Check(ctx))
	}

	// warning at 82, critical at 92, critical recovery at 84, warning recovery at 74
	assert.Equal(t, []notification.Priority{
		notification.PriorityHigh,
		notification.PriorityCritical,
		notification.PriorityMedium,
		notification.PriorityMedium,
	}, rec.priorities())

	path, used, warn, crit := m.Status()
	assert.Equal(t, "/captures", path)
	assert.InDelta(t, 74.0, used, 1e-9)
	assert.False(t, warn)
	assert.False(t, crit)
}

func TestCriticalResend(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	disk := &fakeDisk{used: 97}
	rec := &recordingNotifier{}
	m := New(testConfig(), staticPath("/captures"), rec,
		WithUsageFunc(disk.usage),
		WithClock(func() time.Time { return now }))

	require.NoError(t, m.Check(t.Context()))
	now = now.Add(30 * time.Minute)
	require.NoError(t, m.Check(t.Context()))
	assert.Len(t, rec.priorities(), 1)

	now = now.Add(31 * time.Minute)
	require.NoError(t, m.Check(t.Context()))
	assert.Len(t, rec.priorities(), 2)
}

func TestPathChangeResetsState(t *testing.T) {
	t.Parallel()

	disk := &fakeDisk{used: 85}
	rec := &recordingNotifier{}
	dir := "/a"
	m := New(testConfig(), func(context.Context) (string, error) { return dir, nil }, rec,
		WithUsageFunc(disk.usage))

	require.NoError(t, m.Check(t.Context()))
	dir = "/b"
	require.NoError(t, m.Check(t.Context()))

	// each directory raises its own warning
	assert.Len(t, rec.priorities(), 2)
	path, _, warn, _ := m.Status()
	assert.Equal(t, "/b", path)
	assert.True(t, warn)
}

func TestUsageErrorIsReported(t *testing.T) {
	t.Parallel()

	m := New(testConfig(), staticPath(""), nil,
		WithUsageFunc(func(path string) (float64, error) {
			assert.Equal(t, ".", path)
			return 0, context.DeadlineExceeded
		}))
	require.Error(t, m.Check(t.Context()))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	disk := &fakeDisk{used: 10}
	m := New(testConfig(), staticPath(t.TempDir()), nil, WithUsageFunc(disk.usage))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.ShortTestTimeout, "monitor did not stop"))
}

func TestDiskUsageOnRealDirectory(t *testing.T) {
	t.Parallel()

	used, err := diskUsage(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, used, 0.0)
	assert.LessOrEqual(t, used, 100.0)
}
