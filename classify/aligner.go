package classify

import (
	"github.com/nanolab/minster/biosimd"
	"github.com/nanolab/minster/encoding/fasta"
	"github.com/nanolab/minster/util"
)

// Hit is one candidate alignment of a query sequence against a stratum's
// reference, scored the way a real long-read aligner would: mapping
// quality, the length of the matched region, and the edit distance of
// that match. Higher mapq, longer matches, and lower edit distance are
// all "better".
type Hit struct {
	StrataID     string
	MapQ         int
	MatchLength  int
	EditDistance int
	IsPrimary    bool
}

// Better reports whether h scores strictly better than other under the
// (mapq, match_length, -edit_distance) ordering key used throughout this
// system to pick a single best hit among several candidate strata.
func (h Hit) Better(other Hit) bool {
	if h.MapQ != other.MapQ {
		return h.MapQ > other.MapQ
	}
	if h.MatchLength != other.MatchLength {
		return h.MatchLength > other.MatchLength
	}
	return h.EditDistance < other.EditDistance
}

const (
	minSeedHits  = 1  // at least this many verified anchors before extension is attempted.
	extendFlank  = 40 // bases extended on either side of a seed anchor.
	maxEditBand  = 20 // edit distance beyond which a candidate is discarded as noise.
)

// StratumAligner is a seed-and-extend aligner over one stratum's
// reference sequence(s): it indexes minimizers once at load time, then
// for each query finds a candidate seed, extends it into a bounded
// edit-distance alignment, and reports the result as a Hit.
type StratumAligner struct {
	strataID string
	index    *seedIndex
}

// NewStratumAligner builds an aligner for one stratum's FASTA reference.
func NewStratumAligner(strataID string, ref fasta.Fasta) (*StratumAligner, error) {
	idx, err := buildSeedIndex(ref)
	if err != nil {
		return nil, err
	}
	return &StratumAligner{strataID: strataID, index: idx}, nil
}

// Map returns every primary hit found for query against this stratum's
// reference. In practice a single best candidate is returned (marked
// IsPrimary), mirroring a real aligner's primary/supplementary split
// without needing to report supplementary alignments this system never
// consults.
//
// A nanopore read translocates from either strand with equal likelihood,
// so query is seeded against the reference both as given and as its
// reverse complement (the reference index itself stays forward-only, the
// same minimizer-sketch trick minimap2 uses rather than doubling index
// size); the better-scoring orientation's hit wins.
func (a *StratumAligner) Map(query []byte) []Hit {
	if len(query) < seedK {
		return nil
	}
	best, haveHit := a.bestCandidate(query)

	revComp := make([]byte, len(query))
	biosimd.ReverseComp8NoValidate(revComp, query)
	if revHit, ok := a.bestCandidate(revComp); ok && (!haveHit || revHit.Better(best)) {
		best, haveHit = revHit, true
	}

	if !haveHit {
		return nil
	}
	return []Hit{best}
}

func (a *StratumAligner) bestCandidate(query []byte) (Hit, bool) {
	var (
		best    Hit
		haveHit bool
	)

	seen := make(map[[2]int]bool)
	for qpos := 0; qpos+seedK <= len(query); qpos += seedK {
		kmer := query[qpos : qpos+seedK]
		for _, anchor := range a.index.lookup(kmer) {
			c := a.index.contigs[anchor.contig]
			key := [2]int{anchor.contig, anchor.pos - qpos}
			if seen[key] {
				continue
			}
			seen[key] = true

			hit, ok := a.extend(c.seq, query, anchor.pos, qpos)
			if !ok {
				continue
			}
			if !haveHit || hit.Better(best) {
				best = hit
				haveHit = true
			}
		}
	}
	if haveHit {
		best.IsPrimary = true
	}
	return best, haveHit
}

// extend widens a seed anchor (ref[refPos:refPos+seedK] == query[qPos:qPos+seedK])
// into a bounded edit-distance alignment of the flanking sequence on both sides,
// and computes a mapq proxy from the resulting match length and edit
// distance.
func (a *StratumAligner) extend(ref, query []byte, refPos, qPos int) (Hit, bool) {
	refStart, queryStart := extendLeft(ref, query, refPos, qPos, extendFlank)
	refEnd, queryEnd := extendRight(ref, query, refPos+seedK, qPos+seedK, extendFlank)

	refWindow := ref[refStart:refEnd]
	queryWindow := query[queryStart:queryEnd]

	editDistance := util.BoundedEditDistance(string(refWindow), string(queryWindow), maxEditBand)
	if editDistance > maxEditBand {
		return Hit{}, false
	}

	matchLength := queryEnd - queryStart
	mapq := mapqFromAlignment(matchLength, editDistance)

	return Hit{
		StrataID:     a.strataID,
		MapQ:         mapq,
		MatchLength:  matchLength,
		EditDistance: editDistance,
	}, true
}

func extendLeft(ref, query []byte, refPos, qPos, flank int) (int, int) {
	n := flank
	if refPos < n {
		n = refPos
	}
	if qPos < n {
		n = qPos
	}
	return refPos - n, qPos - n
}

func extendRight(ref, query []byte, refPos, qPos, flank int) (int, int) {
	n := flank
	if len(ref)-refPos < n {
		n = len(ref) - refPos
	}
	if len(query)-qPos < n {
		n = len(query) - qPos
	}
	return refPos + n, qPos + n
}

// mapqFromAlignment derives a Phred-like mapping quality (0-60, the
// conventional ceiling used by long-read aligners) from the fraction of
// the matched window consumed by edits.
func mapqFromAlignment(matchLength, editDistance int) int {
	if matchLength == 0 {
		return 0
	}
	identity := 1.0 - float64(editDistance)/float64(matchLength)
	mapq := int(identity * 60)
	if mapq < 0 {
		mapq = 0
	}
	if mapq > 60 {
		mapq = 60
	}
	return mapq
}
