package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "no value"))
}

func TestWaitForChannelClosed(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	close(done)
	WaitForChannel(t, done, ShortTestTimeout, "not closed")
}
