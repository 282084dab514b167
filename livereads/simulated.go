package livereads

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/nanolab/minster/encoding/fasta"
)

// Simulated is an in-process stand-in for a live-reads transport,
// generating chunks by slicing windows out of the configured reference
// genomes. It exists so the regulator's hot loop can be exercised
// locally and in tests without a real sequencer attached.
type Simulated struct {
	rng         *rand.Rand
	references  []fasta.Fasta
	chunkLength int

	channels     int
	signalDtype  string
	calibration  map[int]Calibration

	mu      sync.Mutex
	running atomic.Bool
	cursor  map[int]int // per-channel offset into its assigned reference
	nextID  int
}

// NewSimulated builds a Simulated client that serves chunkLength-base
// windows round-robin across channels channels, drawn from references
// (one reference assigned per channel, cycling if there are fewer
// references than channels).
func NewSimulated(references []fasta.Fasta, channels int, chunkLength int, seed int64) *Simulated {
	calibration := make(map[int]Calibration, channels)
	for ch := 0; ch < channels; ch++ {
		calibration[ch] = Calibration{Offset: 0, Scaling: 1}
	}
	s := &Simulated{
		rng:         rand.New(rand.NewSource(seed)),
		references:  references,
		chunkLength: chunkLength,
		channels:    channels,
		signalDtype: "int16",
		calibration: calibration,
		cursor:      make(map[int]int, channels),
	}
	s.running.Store(true)
	return s
}

func (s *Simulated) IsRunning() bool { return s.running.Load() }

func (s *Simulated) ChannelCount() int { return s.channels }

func (s *Simulated) SignalDtype() string { return s.signalDtype }

func (s *Simulated) CalibrationValues() map[int]Calibration { return s.calibration }

// GetReadChunks returns one synthetic chunk per active channel, up to
// maxCount channels, advancing each channel's cursor through its
// assigned reference.
func (s *Simulated) GetReadChunks(maxCount int, last bool) []ChannelRead {
	if !s.IsRunning() || len(s.references) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := maxCount
	if count > s.channels {
		count = s.channels
	}

	chunks := make([]ChannelRead, 0, count)
	for ch := 0; ch < count; ch++ {
		ref := s.references[ch%len(s.references)]
		seqNames := ref.SeqNames()
		if len(seqNames) == 0 {
			continue
		}
		seqName := seqNames[0]
		length, err := ref.Len(seqName)
		if err != nil || length == 0 {
			continue
		}

		start := uint64(s.cursor[ch]) % length
		end := start + uint64(s.chunkLength)
		if end > length {
			end = length
		}
		seq, err := ref.Get(seqName, start, end)
		if err != nil || seq == "" {
			continue
		}
		s.cursor[ch] = int(end)

		s.nextID++
		readID := fmt.Sprintf("simulated-read-%d", s.nextID)
		chunks = append(chunks, ChannelRead{
			Channel: ch,
			Read:    ReadData{ID: readID, RawData: []byte(seq), StartSample: uint64(s.nextID) * uint64(s.chunkLength)},
		})
	}
	return chunks
}

// UnblockReadBatch is a no-op: Simulated does not model pore state.
func (s *Simulated) UnblockReadBatch(batch []ReadData) {}

// StopReceivingBatch is a no-op: Simulated does not model pore state.
func (s *Simulated) StopReceivingBatch(batch []ReadData) {}

func (s *Simulated) Run() { s.running.Store(true) }

func (s *Simulated) Reset() { s.running.Store(false) }
