package services

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// scratchFile is a local temporary copy of a stream, used when the exact byte length must be
// known before an upload or when an inbound payload is buffered before processing.
type scratchFile struct {
	path string
}

// writeScratchFile copies r into a new temporary file in dir and returns it with its size.
func writeScratchFile(dir, pattern string, r io.Reader) (*scratchFile, int64, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	s := &scratchFile{path: f.Name()}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		s.remove()
		return nil, 0, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.remove()
		return nil, 0, fmt.Errorf("failed to close scratch file: %w", err)
	}
	return s, n, nil
}

// open returns a reader over the file that deletes the file when closed.
func (s *scratchFile) open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch file: %w", err)
	}
	return &removeOnClose{File: f}, nil
}

func (s *scratchFile) remove() {
	_ = os.Remove(s.path)
}

type removeOnClose struct {
	*os.File
	once sync.Once
	err  error
}

func (r *removeOnClose) Close() error {
	r.once.Do(func() {
		r.err = r.File.Close()
		if err := os.Remove(r.File.Name()); err != nil && !os.IsNotExist(err) && r.err == nil {
			r.err = err
		}
	})
	return r.err
}
