package classify

import (
	"github.com/chmduquesne/rollinghash/buzhash32"
	farm "github.com/dgryski/go-farm"
	"github.com/minio/highwayhash"

	"github.com/nanolab/minster/encoding/fasta"
)

// seedK and seedW are the k-mer length and minimizer window width used to
// index reference sequences for seed-and-extend alignment. They play the
// same role as -k/-w in a minimizer-based aligner, fixed here because the
// classifier configuration exposes no alignment-specific knobs beyond
// "use the alignment-based classifier" (config.MappySettings is a marker
// type).
const (
	seedK = 15
	seedW = 10
)

var highwayKey = make([]byte, 32) // zero key: only used to disambiguate farm-hash collisions, not for security.

// contig is one named reference sequence loaded from a stratum's FASTA file.
type contig struct {
	name string
	seq  []byte
}

// anchor is one minimizer position recorded in a seedIndex.
type anchor struct {
	contig int
	pos    int
	check  uint64 // highwayhash fingerprint of the k-mer, to reject farm-hash collisions cheaply.
}

// seedIndex maps a k-mer's farm hash to every position in the reference
// where that k-mer was selected as its window's minimizer.
type seedIndex struct {
	contigs []contig
	seeds   map[uint64][]anchor
}

// buildSeedIndex loads every sequence from ref and indexes its minimizers.
func buildSeedIndex(ref fasta.Fasta) (*seedIndex, error) {
	idx := &seedIndex{seeds: make(map[uint64][]anchor)}
	for ci, name := range ref.SeqNames() {
		length, err := ref.Len(name)
		if err != nil {
			return nil, err
		}
		seqStr, err := ref.Get(name, 0, length)
		if err != nil {
			return nil, err
		}
		seq := []byte(seqStr)
		idx.contigs = append(idx.contigs, contig{name: name, seq: seq})
		idx.indexContig(ci, seq)
	}
	return idx, nil
}

// indexContig records the minimizer (lowest rolling hash) of every
// window of seedW consecutive k-mers across seq, following the standard
// minimizer-sketch technique: every k-mer that is ever the minimum of
// some window gets indexed, so a query can be seeded even when it
// doesn't share the reference's exact window boundaries.
func (idx *seedIndex) indexContig(ci int, seq []byte) {
	for _, pos := range minimizerPositions(seq, seedK, seedW) {
		idx.addAnchor(ci, pos, seq[pos:pos+seedK])
	}
}

// minimizerPositions returns the distinct positions, in order, of the
// window minimizer of every sliding window of w consecutive k-length
// k-mers in seq (a (w, k)-minimizer scheme).
func minimizerPositions(seq []byte, k, w int) []int {
	if len(seq) < k {
		return nil
	}
	kmerHashes := rollingKmerHashes(seq, k)
	n := len(kmerHashes)

	var positions []int
	lastMinPos := -1
	for start := 0; start+w <= n; start++ {
		minPos := start
		for i := start + 1; i < start+w; i++ {
			if kmerHashes[i] < kmerHashes[minPos] {
				minPos = i
			}
		}
		if minPos == lastMinPos {
			continue
		}
		lastMinPos = minPos
		positions = append(positions, minPos)
	}
	return positions
}

func (idx *seedIndex) addAnchor(ci, pos int, kmer []byte) {
	key := farm.Hash64(kmer)
	idx.seeds[key] = append(idx.seeds[key], anchor{contig: ci, pos: pos, check: fingerprint(kmer)})
}

// rollingKmerHashes computes a 32-bit rolling hash (buzhash) of every
// k-length window in seq, used only to pick cheap per-window minimizers;
// the index itself is keyed on the slower, better-distributed farm hash
// of the winning k-mer.
func rollingKmerHashes(seq []byte, k int) []uint32 {
	h := buzhash32.New()
	h.Write(seq[:k])
	hashes := make([]uint32, len(seq)-k+1)
	hashes[0] = h.Sum32()
	for i := 1; i < len(hashes); i++ {
		h.Roll(seq[i+k-1])
		hashes[i] = h.Sum32()
	}
	return hashes
}

func fingerprint(kmer []byte) uint64 {
	return highwayhash.Sum64(kmer, highwayKey)
}

// lookup returns every anchor whose k-mer matches kmer, after verifying
// the highwayhash fingerprint to filter out farm-hash collisions.
func (idx *seedIndex) lookup(kmer []byte) []anchor {
	key := farm.Hash64(kmer)
	candidates := idx.seeds[key]
	if len(candidates) == 0 {
		return nil
	}
	check := fingerprint(kmer)
	verified := candidates[:0:0]
	for _, a := range candidates {
		if a.check == check {
			verified = append(verified, a)
		}
	}
	return verified
}
