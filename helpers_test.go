package ibento

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

// logBuffer collects the output of a logger, safe for concurrent writers.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Count returns the number of lines logged with msg.
func (b *logBuffer) Count(msg string) int {
	return strings.Count(b.String(), `"msg":"`+msg+`"`)
}

func newTestLogger(t *testing.T) (*Logger, *logBuffer) {
	t.Helper()
	var buf logBuffer
	logger := NewLogger(&buf, logiface.LevelTrace)
	require.NotNil(t, logger)
	return logger, &buf
}

// bogusEvent is an event with a kind outside of the enumeration.
type bogusEvent struct {
	base
}

func (bogusEvent) ID() Kind { return Kind(99) }

func kindsOf(events []Event) []Kind {
	kinds := make([]Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.ID())
	}
	return kinds
}

func castPanic(t *testing.T, fn func()) (ce *CastError) {
	t.Helper()
	defer func() {
		rec := recover()
		require.NotNil(t, rec, "expected a panic")
		var ok bool
		ce, ok = rec.(*CastError)
		require.True(t, ok, "unexpected panic value %T: %v", rec, rec)
	}()
	fn()
	return nil
}
