package transcribe

import (
	"io"
	"sync"

	"murmur/model"
)

// slot holds the single resident model. Switching size unloads the previous
// context before the next one is loaded, so peak residency is one model.
type slot struct {
	mu     sync.Mutex
	size   model.Size
	handle io.Closer
}

type loadFunc func() (io.Closer, error)

// acquire returns the resident handle for size, loading it if needed. The
// caller does not own the handle; close releases it.
func (s *slot) acquire(size model.Size, load loadFunc) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && s.size == size {
		return s.handle, nil
	}
	if s.handle != nil {
		// Unload first: two models must never be resident at once.
		s.handle.Close()
		s.handle = nil
		s.size = ""
	}

	h, err := load()
	if err != nil {
		return nil, err
	}
	s.handle = h
	s.size = size
	return h, nil
}

func (s *slot) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	s.size = ""
	return err
}

// resident reports the currently loaded size, empty when nothing is loaded.
func (s *slot) resident() model.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
