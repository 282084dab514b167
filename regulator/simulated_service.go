package regulator

import "sync"

// SimulatedService is a Service stand-in for local development and
// testing: it treats each chunk's raw bytes as already being its called
// sequence (matching livereads.Simulated, which packs ASCII sequence
// into RawData) and completes every submission immediately.
type SimulatedService struct {
	mu      sync.Mutex
	pending []CompletedRead
}

// NewSimulatedService builds an empty SimulatedService.
func NewSimulatedService() *SimulatedService {
	return &SimulatedService{}
}

// Pass always succeeds, queuing every read as immediately complete.
func (s *SimulatedService) Pass(reads []PackagedRead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reads {
		s.pending = append(s.pending, CompletedRead{Channel: r.Channel, ReadID: r.ReadID, Sequence: string(r.RawData)})
	}
	return true
}

// CompletedReads drains and returns every read queued by Pass so far.
func (s *SimulatedService) CompletedReads() []CompletedRead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}
