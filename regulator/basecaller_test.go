package regulator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/livereads"
)

// scriptedService lets tests control exactly what Pass/CompletedReads
// return on each call, to exercise the adapter's retry and partial-poll
// handling without a real basecaller.
type scriptedService struct {
	mu sync.Mutex

	passResults []bool
	passCalls   int

	pollResults [][]CompletedRead
	pollCalls   int
}

func (s *scriptedService) Pass(reads []PackagedRead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := s.passResults[s.passCalls]
	if s.passCalls < len(s.passResults)-1 {
		s.passCalls++
	}
	return result
}

func (s *scriptedService) CompletedReads() []CompletedRead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCalls >= len(s.pollResults) {
		return nil
	}
	out := s.pollResults[s.pollCalls]
	s.pollCalls++
	return out
}

func reads(ids ...string) []livereads.ChannelRead {
	out := make([]livereads.ChannelRead, len(ids))
	for i, id := range ids {
		out[i] = livereads.ChannelRead{Channel: i, Read: livereads.ReadData{ID: id, RawData: []byte("ACGT")}}
	}
	return out
}

func TestAdapterSkipsPartialSubTagEmissions(t *testing.T) {
	service := &scriptedService{
		passResults: []bool{true},
		pollResults: [][]CompletedRead{
			{
				{ReadID: "r1", Sequence: "ACG", SubTag: 1},
				{ReadID: "r1", Sequence: "ACGT", SubTag: 0},
			},
		},
	}
	adapter := NewAdapter(service, 4000, config.BasecallerSettings{MaxAttempts: 1}, time.Millisecond)

	completed := adapter.Basecall(reads("r1"), map[int]livereads.Calibration{0: {Offset: 0, Scaling: 1}})

	require.Len(t, completed, 1)
	assert.Equal(t, "ACGT", completed[0].Sequence)
}

func TestAdapterRetriesSubmissionUntilMaxAttempts(t *testing.T) {
	service := &scriptedService{
		passResults: []bool{false, false, false},
		pollResults: nil,
	}
	adapter := NewAdapter(service, 4000, config.BasecallerSettings{MaxAttempts: 3}, time.Millisecond)

	completed := adapter.Basecall(reads("r1"), map[int]livereads.Calibration{0: {Offset: 0, Scaling: 1}})

	assert.Nil(t, completed)
	assert.Equal(t, 3, service.passCalls+1)
}

func TestAdapterPollsUntilAllReadsComplete(t *testing.T) {
	service := &scriptedService{
		passResults: []bool{true},
		pollResults: [][]CompletedRead{
			nil,
			{{ReadID: "r1", Sequence: "AAAA"}},
			{{ReadID: "r2", Sequence: "CCCC"}},
		},
	}
	adapter := NewAdapter(service, 4000, config.BasecallerSettings{MaxAttempts: 1}, time.Millisecond)

	completed := adapter.Basecall(reads("r1", "r2"), map[int]livereads.Calibration{0: {Offset: 0, Scaling: 1}, 1: {Offset: 0, Scaling: 1}})

	require.Len(t, completed, 2)
	ids := []string{completed[0].ReadID, completed[1].ReadID}
	assert.ElementsMatch(t, []string{"r1", "r2"}, ids)
}
