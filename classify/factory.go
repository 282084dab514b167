package classify

import (
	"github.com/grailbio/base/errors"

	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/encoding/fasta"
)

// Factory builds the single configured Classifier from loaded reference
// FASTA files, keeping StratumAligner construction (needed regardless of
// which real-time Classifier is chosen: the strata balancer's post-hoc
// alignment stats always use StratumAligner) separate from the
// real-time Classifier variant selection.
type Factory struct {
	references map[string]fasta.Fasta
}

// NewFactory builds a Factory over the given stratum id -> reference map.
func NewFactory(references map[string]fasta.Fasta) *Factory {
	return &Factory{references: references}
}

// Aligners builds one StratumAligner per configured stratum, used by the
// strata balancer for post-hoc alignment regardless of the real-time
// classifier variant in use.
func (f *Factory) Aligners() (map[string]*StratumAligner, error) {
	aligners := make(map[string]*StratumAligner, len(f.references))
	for strataID, ref := range f.references {
		aligner, err := NewStratumAligner(strataID, ref)
		if err != nil {
			return nil, errors.E(err, "building aligner", strataID)
		}
		aligners[strataID] = aligner
	}
	return aligners, nil
}

// Create builds the real-time Classifier selected by cfg.
func (f *Factory) Create(cfg config.ClassifierSettings, aligners map[string]*StratumAligner) (Classifier, error) {
	switch {
	case cfg.Mappy != nil:
		return NewAlignerClassifier(aligners), nil
	case cfg.InterleavedBloomFilter != nil:
		return NewIBFClassifier(*cfg.InterleavedBloomFilter, f.references)
	default:
		return nil, errors.E("no valid classifier configuration passed")
	}
}
