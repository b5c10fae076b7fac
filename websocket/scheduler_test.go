package websocket

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSchedulerPriorityOrdering(t *testing.T) {
	s := newWriteScheduler(1 << 20)
	s.enqueue([]byte("data1"), false)
	s.enqueue([]byte("data2"), false)
	s.enqueue([]byte("ctrl1"), true)

	var out bytes.Buffer
	now := time.Now()

	for !s.isEmpty() {
		_, err := s.flush(&out, now)
		require.NoError(t, err)
	}

	assert.Equal(t, "ctrl1data1data2", out.String())
}

func TestWriteSchedulerIsEmpty(t *testing.T) {
	s := newWriteScheduler(1024)
	assert.True(t, s.isEmpty())

	s.enqueue([]byte("x"), false)
	assert.False(t, s.isEmpty())
}

func TestWriteSchedulerCloseAfterWrite(t *testing.T) {
	s := newWriteScheduler(1 << 20)
	s.enqueue([]byte("bye"), true)
	s.armCloseAfterWrite()

	var out bytes.Buffer
	shouldClose, err := s.flush(&out, time.Now())
	require.NoError(t, err)
	assert.True(t, shouldClose)
	assert.Equal(t, "bye", out.String())
}

func TestWriteSchedulerNotReadyWithoutFullBudget(t *testing.T) {
	s := newWriteScheduler(2) // burst of 2 bytes
	s.enqueue([]byte("abcdef"), false)

	var out bytes.Buffer
	now := time.Now()

	// First cycle: bucket starts full (burst=2), so only 2 bytes go out.
	_, err := s.flush(&out, now)
	require.NoError(t, err)
	assert.Equal(t, "ab", out.String())

	// Immediately again: bucket just spent, nothing new refilled yet.
	_, err = s.flush(&out, now)
	require.NoError(t, err)
	assert.Equal(t, "ab", out.String(), "no bytes should flush before the bucket refills")

	// After enough time for the bucket to refill, more goes out.
	later := now.Add(2 * time.Second)
	_, err = s.flush(&out, later)
	require.NoError(t, err)
	assert.Equal(t, "abcd", out.String())
}

// TestWriteSchedulerPartialWriteRetainsTail exercises an io.Writer that
// only accepts part of a write, asserting the cursor keeps the remainder
// for the next flush instead of dropping it.
func TestWriteSchedulerPartialWriteRetainsTail(t *testing.T) {
	s := newWriteScheduler(1 << 20)
	s.enqueue([]byte("0123456789"), false)

	pw := &partialWriter{limit: 3}
	now := time.Now()

	_, err := s.flush(pw, now)
	require.NoError(t, err)
	assert.Equal(t, "012", string(pw.written))

	_, err = s.flush(pw, now)
	require.NoError(t, err)
	assert.Equal(t, "012345", string(pw.written))
}

type partialWriter struct {
	limit   int
	written []byte
}

func (p *partialWriter) Write(b []byte) (int, error) {
	n := len(b)
	if n > p.limit {
		n = p.limit
	}
	p.written = append(p.written, b[:n]...)
	return n, nil
}
