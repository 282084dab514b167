package classify

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nanolab/minster/biosimd"
	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/encoding/fasta"
)

// IBFClassifier is the interleaved-Bloom-filter Classifier: every
// stratum gets one bin (a Bloom filter sized identically across bins,
// following the interleaved Bloom filter structure used for multi-
// reference membership queries), populated with the minimizers of that
// stratum's reference. A chunk is called for whichever active bin's
// k-mers it matches above the configured preserved-fraction threshold.
type IBFClassifier struct {
	settings config.IBFSettings

	mu     sync.Mutex
	bins   map[string]*bloom.BloomFilter
	active map[string]bool
}

// NewIBFClassifier builds one bin per entry in refs (stratum id -> FASTA
// reference), all sized from the window count of the longest reference
// sequence so every bin shares a bit-array layout, per the interleaved Bloom filter
// design: querying is done bin-by-bin here, but the common sizing keeps
// this implementation substitutable with a truly interleaved (bit-
// packed) backing store without changing the Classifier contract.
func NewIBFClassifier(settings config.IBFSettings, refs map[string]fasta.Fasta) (*IBFClassifier, error) {
	maxLen, err := maxReferenceLength(refs)
	if err != nil {
		return nil, err
	}
	binSize := calculateSBFSize(maxLen, settings.W, settings.K, settings.Hashes, settings.FPRate)

	c := &IBFClassifier{
		settings: settings,
		bins:     make(map[string]*bloom.BloomFilter, len(refs)),
		active:   make(map[string]bool, len(refs)),
	}
	for strataID, ref := range refs {
		filter := bloom.New(binSize, uint(settings.Hashes))
		if err := insertReference(filter, ref, settings.K, settings.W); err != nil {
			return nil, err
		}
		c.bins[strataID] = filter
		c.active[strataID] = false
	}
	return c, nil
}

func maxReferenceLength(refs map[string]fasta.Fasta) (uint64, error) {
	var max uint64
	for _, ref := range refs {
		for _, name := range ref.SeqNames() {
			length, err := ref.Len(name)
			if err != nil {
				return 0, err
			}
			if length > max {
				max = length
			}
		}
	}
	return max, nil
}

func insertReference(filter *bloom.BloomFilter, ref fasta.Fasta, k, w int) error {
	for _, name := range ref.SeqNames() {
		length, err := ref.Len(name)
		if err != nil {
			return err
		}
		seqStr, err := ref.Get(name, 0, length)
		if err != nil {
			return err
		}
		seq := []byte(seqStr)
		for _, pos := range minimizerPositions(seq, k, w) {
			filter.Add(seq[pos : pos+k])
		}
	}
	return nil
}

// calculateSBFSize computes the per-bin bit-array size so that, given
// numHashes independent hash functions and the densest bin's window
// count, the filter's overall false-positive rate stays at fpRate. This
// mirrors the reference implementation's sizing formula exactly.
func calculateSBFSize(maxGenomeLen uint64, w, k, numHashes int, fpRate float64) uint {
	maxWindows := float64(maxGenomeLen) - float64(w+k-1) + 1
	if maxWindows < 1 {
		maxWindows = 1
	}
	denom := math.Exp(math.Log(1-math.Pow(fpRate, 1.0/float64(numHashes)))*(1.0/(float64(numHashes)*maxWindows))) - 1
	size := math.Ceil(-1.0 / denom)
	if size < 1 {
		size = 1
	}
	return uint(size)
}

// ActivateSequences implements Classifier.
func (c *IBFClassifier) ActivateSequences(strataID string) {
	c.mu.Lock()
	c.active[strataID] = true
	c.mu.Unlock()
}

// DeactivateSequences implements Classifier. This rebuilds the active
// set from scratch (O(bins)): the reference implementation resets the
// whole interleaved structure and re-activates every surviving bin
// rather than clearing one bin in place, and this mirrors that cost.
func (c *IBFClassifier) DeactivateSequences(strataID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[strataID] = false
	survivors := make([]string, 0, len(c.active))
	for id, on := range c.active {
		if on {
			survivors = append(survivors, id)
		}
	}
	for id := range c.active {
		c.active[id] = false
	}
	for _, id := range survivors {
		c.active[id] = true
	}
}

// IsSequencePresent implements Classifier. It tests sequence's
// minimizers against every active bin and returns the bin with the
// highest fraction of matching minimizers, provided that fraction clears
// PreservedPct.
//
// A nanopore read translocates from either strand, so sequence's bins are
// populated from the reference's forward strand only (see
// NewIBFClassifier/insertReference); sequence is tested against those
// bins both as given and as its reverse complement, and the better-
// matching orientation's fraction is kept per stratum.
func (c *IBFClassifier) IsSequencePresent(sequence []byte) (string, bool) {
	fwdPositions := minimizerPositions(sequence, c.settings.K, c.settings.W)

	revComp := make([]byte, len(sequence))
	biosimd.ReverseComp8NoValidate(revComp, sequence)
	revPositions := minimizerPositions(revComp, c.settings.K, c.settings.W)

	if len(fwdPositions) == 0 && len(revPositions) == 0 {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		bestID    string
		bestFrac  float64
		haveMatch bool
	)
	for strataID, filter := range c.bins {
		if !c.active[strataID] {
			continue
		}
		frac := matchFraction(filter, sequence, fwdPositions, c.settings.K)
		if revFrac := matchFraction(filter, revComp, revPositions, c.settings.K); revFrac > frac {
			frac = revFrac
		}
		if frac >= c.settings.PreservedPct && (!haveMatch || frac > bestFrac) {
			bestID = strataID
			bestFrac = frac
			haveMatch = true
		}
	}
	return bestID, haveMatch
}

// matchFraction returns the fraction of positions (minimizer offsets
// into seq) whose k-length window tests positive against filter.
func matchFraction(filter *bloom.BloomFilter, seq []byte, positions []int, k int) float64 {
	if len(positions) == 0 {
		return 0
	}
	hits := 0
	for _, pos := range positions {
		if filter.Test(seq[pos : pos+k]) {
			hits++
		}
	}
	return float64(hits) / float64(len(positions))
}
