package logger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFileWriter_Write(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "test.log")

	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(0))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	line := "capture started\n"
	n, err := writer.Write([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Positive(t, writer.Buffered())

	require.NoError(t, writer.Flush())
	assert.Zero(t, writer.Buffered())

	content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Equal(t, line, string(content))
}

func TestBufferedFileWriter_AutoFlush(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "autoflush.log")

	writer, err := NewBufferedFileWriter(logPath, WithFlushInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	_, err = writer.Write([]byte("tick\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		content, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
		return err == nil && string(content) == "tick\n"
	}, time.Second, 10*time.Millisecond)
}

func TestBufferedFileWriter_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	writer, err := NewBufferedFileWriter(filepath.Join(t.TempDir(), "close.log"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	_, err = writer.Write([]byte("late"))
	require.ErrorIs(t, err, errWriterClosed)
}

func TestBufferedFileWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := NewBufferedFileWriter(logPath, WithBufferSize(64))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				_, _ = writer.Write([]byte("0123456789\n"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, writer.Close())

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, int64(8*100*11), info.Size())
}
