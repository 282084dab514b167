package strata

import (
	"sync"

	"github.com/grailbio/base/errors"

	"github.com/nanolab/minster/encoding/fasta"
)

// AlignmentStats accumulates, for one stratum, the total aligned bases
// and read count contributed by reads whose best primary alignment
// picked this stratum, plus the reference's contig count for coverage
// reporting.
type AlignmentStats struct {
	sequencePath string
	contigCount  int

	mu            sync.Mutex
	alignedLength int
	readCount     int
}

// NewAlignmentStats counts ref's contigs and returns a zeroed
// AlignmentStats for sequencePath.
func NewAlignmentStats(sequencePath string, ref fasta.Fasta) (*AlignmentStats, error) {
	names := ref.SeqNames()
	for _, name := range names {
		if _, err := ref.Len(name); err != nil {
			return nil, errors.E(err, "reading reference length", sequencePath, name)
		}
	}
	return &AlignmentStats{sequencePath: sequencePath, contigCount: len(names)}, nil
}

// UpdateAlignedLength folds one more aligned read into the running totals.
func (s *AlignmentStats) UpdateAlignedLength(length int) {
	s.mu.Lock()
	s.alignedLength += length
	s.readCount++
	s.mu.Unlock()
}

// AlignedLength returns the cumulative aligned base count.
func (s *AlignmentStats) AlignedLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alignedLength
}

// ReadCount returns the cumulative aligned read count.
func (s *AlignmentStats) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCount
}

// MeanCoverage returns aligned bases divided by the reference's contig
// count, matching pyfastx's len(Fasta) used by the original
// get_mean_coverage rather than total reference base length.
func (s *AlignmentStats) MeanCoverage() float64 {
	if s.contigCount == 0 {
		return 0
	}
	return roundTo2(float64(s.AlignedLength()) / float64(s.contigCount))
}

// MeanReadLength returns aligned bases divided by aligned read count, or
// 0 if no reads have aligned yet.
func (s *AlignmentStats) MeanReadLength() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readCount == 0 {
		return 0
	}
	return roundTo2(float64(s.alignedLength) / float64(s.readCount))
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
