package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/scan-io-git/ot-collector/pkg/shared/files"
)

// WriterSink writes one JSON envelope per line.
type WriterSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	file   *os.File
	closed bool
}

// NewWriterSink writes to w, which is never closed by the sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

// NewFileSink appends to the file at path, creating it and its directory.
func NewFileSink(path string) (*WriterSink, error) {
	expanded, err := files.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sink path %q: %w", path, err)
	}
	if err := files.CreateFolderIfNotExists(filepath.Dir(expanded)); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink file %q: %w", expanded, err)
	}
	return &WriterSink{w: bufio.NewWriter(f), file: f}, nil
}

func (s *WriterSink) Emit(_ context.Context, ev Event) error {
	line, err := marshalEnvelope(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink is closed")
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return s.w.WriteByte('\n')
}

func (s *WriterSink) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *WriterSink) flushLocked() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync %q: %w", s.file.Name(), err)
		}
	}
	return nil
}

func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flushLocked()
	if s.file != nil {
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
