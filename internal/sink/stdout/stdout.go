// Package stdout implements a Sink that prints messages instead of storing them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink writes each message to a writer, framed with its mailbox.
type Sink struct {
	mu     sync.Mutex
	writer io.Writer
}

// New creates a Sink writing to os.Stdout.
func New() *Sink {
	return &Sink{writer: os.Stdout}
}

// NewWithWriter creates a Sink writing to w.
func NewWithWriter(w io.Writer) *Sink {
	return &Sink{writer: w}
}

// Append prints content.
func (s *Sink) Append(_ context.Context, mailbox string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.writer, "======== %s ========\n%s\n", mailbox, content); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "stdout"
}
