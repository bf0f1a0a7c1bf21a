package testutil

import (
	"bytes"
	"io"
	"sync"

	"github.com/dtroode/puricare-client/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0)
}

// Buffer is a goroutine-safe log sink for asserting on log output.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// MakeBufferLogger returns a debug-level logger that records into a Buffer.
func MakeBufferLogger() (*logger.Logger, *Buffer) {
	b := &Buffer{}
	return logger.NewWithWriter(b, -4), b
}
