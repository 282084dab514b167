package classify

import "sync"

// AlignerClassifier is the alignment-based Classifier: each stratum has
// its own StratumAligner, and a chunk is called for whichever active
// stratum's aligner reports the best (mapq, match_length, -edit_distance)
// hit.
type AlignerClassifier struct {
	mu       sync.Mutex
	aligners map[string]*StratumAligner
	active   map[string]bool
}

// NewAlignerClassifier wraps a pre-built aligner per stratum. All strata
// start deactivated; the strata balancer activates each once it has
// warmed up.
func NewAlignerClassifier(aligners map[string]*StratumAligner) *AlignerClassifier {
	active := make(map[string]bool, len(aligners))
	for id := range aligners {
		active[id] = false
	}
	return &AlignerClassifier{aligners: aligners, active: active}
}

// ActivateSequences implements Classifier.
func (c *AlignerClassifier) ActivateSequences(strataID string) {
	c.mu.Lock()
	c.active[strataID] = true
	c.mu.Unlock()
}

// DeactivateSequences implements Classifier. Unlike IBFClassifier, this
// is O(1): no shared state needs rebuilding when one stratum's aligner
// goes inactive.
func (c *AlignerClassifier) DeactivateSequences(strataID string) {
	c.mu.Lock()
	c.active[strataID] = false
	c.mu.Unlock()
}

// IsSequencePresent implements Classifier.
func (c *AlignerClassifier) IsSequencePresent(sequence []byte) (string, bool) {
	var (
		bestID  string
		best    Hit
		haveHit bool
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	for strataID, aligner := range c.aligners {
		if !c.active[strataID] {
			continue
		}
		hits := aligner.Map(sequence)
		for _, hit := range hits {
			if !hit.IsPrimary {
				continue
			}
			if !haveHit || hit.Better(best) {
				best = hit
				bestID = strataID
				haveHit = true
			}
		}
	}
	return bestID, haveHit
}
