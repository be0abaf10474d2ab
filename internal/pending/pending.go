// Package pending tracks which operations have a request in flight so a
// control can be disabled until the request settles.
package pending

import "sync"

type Set struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSet() *Set {
	return &Set{inFlight: make(map[string]struct{})}
}

// Begin marks op as in flight. It returns false when op already is; otherwise
// the returned func must be called once the request completes.
func (s *Set) Begin(op string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[op]; busy {
		return nil, false
	}
	s.inFlight[op] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, op)
			s.mu.Unlock()
		})
	}, true
}

func (s *Set) Busy(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[op]
	return busy
}
