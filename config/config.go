// Package config loads the TOML experiment configuration for the
// regulator. The settings are parsed once at startup into an immutable
// snapshot and passed by reference to every component that needs it;
// there is no global/singleton config object.
package config

import (
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/errors"
)

// BasecallerSettings configures the batched basecall adapter.
type BasecallerSettings struct {
	Config      string `toml:"config"`
	Address     string `toml:"address"`
	MaxAttempts int    `toml:"max_attempts"`
}

// IBFSettings configures the interleaved Bloom filter classifier.
type IBFSettings struct {
	FragmentLength int     `toml:"fragment_length"`
	W              int     `toml:"w"`
	K              int     `toml:"k"`
	Hashes         int     `toml:"hashes"`
	NumOfBins      int     `toml:"num_of_bins"`
	FPRate         float64 `toml:"fp_rate"`
	PreservedPct   float64 `toml:"preserved_pct"`
}

// MappySettings selects the alignment-based classifier. It currently
// carries no fields of its own; its presence in the config is the signal.
type MappySettings struct{}

// ClassifierSettings selects exactly one classifier variant.
type ClassifierSettings struct {
	Mappy                 *MappySettings `toml:"mappy"`
	InterleavedBloomFilter *IBFSettings  `toml:"interleaved_bloom_filter"`
}

// Validate enforces that exactly one classifier variant is configured.
func (c ClassifierSettings) Validate() error {
	n := 0
	if c.Mappy != nil {
		n++
	}
	if c.InterleavedBloomFilter != nil {
		n++
	}
	if n != 1 {
		return errors.E("exactly one of classifier.mappy or classifier.interleaved_bloom_filter must be set")
	}
	return nil
}

// ReadUntilSettings configures the regulator's connection to the
// live-reads client and its cycle behavior.
type ReadUntilSettings struct {
	Host            string             `toml:"host"`
	Port            int                `toml:"port"`
	Basecaller      BasecallerSettings `toml:"basecaller"`
	Classifier      ClassifierSettings `toml:"classifier"`
	DepletionChunks int                `toml:"depletion_chunks"`
	Throttle        float64            `toml:"throttle"`
}

// ThrottleDuration returns Throttle as a time.Duration.
func (r ReadUntilSettings) ThrottleDuration() time.Duration {
	return time.Duration(r.Throttle * float64(time.Second))
}

// SequencerSettings locates the MinKNOW instance. cmd/minster only runs
// with --simulated-dir and does not read these settings.
type SequencerSettings struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ReferenceSequence is one stratum's reference genome descriptor.
type ReferenceSequence struct {
	Path          string `toml:"path"`
	ExpectedRatio int    `toml:"expected_ratio"`
}

// ReadProcessorSettings configures the post-hoc read batching.
type ReadProcessorSettings struct {
	BatchSize       int `toml:"batch_size"`
	TargetBaseCount int `toml:"target_base_count"`
}

// Settings is the full, validated experiment configuration.
type Settings struct {
	MetricsStore                        string `toml:"metrics_store"`
	MinimumReadsForParameterEstimation  int    `toml:"minimum_reads_for_parameter_estimation"`
	MinimumFragmentsForRatioEstimation  int    `toml:"minimum_fragments_for_ratio_estimation"`
	MinimumMappedBases                  int    `toml:"minimum_mapped_bases"`
	ThinningAccelerator                 int    `toml:"thinning_accelerator"`

	ReadProcessor      ReadProcessorSettings `toml:"read_processor"`
	ReferenceSequences []ReferenceSequence   `toml:"reference_sequences"`

	Sequencer  SequencerSettings  `toml:"sequencer"`
	ReadUntil  ReadUntilSettings  `toml:"read_until"`
}

func withDefaults(s *Settings) {
	if s.Sequencer.Host == "" {
		s.Sequencer.Host = "localhost"
	}
	if s.Sequencer.Port == 0 {
		s.Sequencer.Port = 9501
	}
	if s.ReadUntil.Host == "" {
		s.ReadUntil.Host = "127.0.0.1"
	}
	if s.ReadUntil.Port == 0 {
		s.ReadUntil.Port = 8000
	}
	if s.ReadUntil.Basecaller.Address == "" {
		s.ReadUntil.Basecaller.Address = "ipc:///tmp/.guppy/5555"
	}
	if s.ReadUntil.Basecaller.MaxAttempts == 0 {
		s.ReadUntil.Basecaller.MaxAttempts = 3
	}
	if s.ReadUntil.DepletionChunks == 0 {
		s.ReadUntil.DepletionChunks = 4
	}
	if s.ReadUntil.Throttle == 0 {
		s.ReadUntil.Throttle = 0.1
	}
	if s.ReadUntil.Classifier.InterleavedBloomFilter != nil && s.ReadUntil.Classifier.InterleavedBloomFilter.Hashes == 0 {
		s.ReadUntil.Classifier.InterleavedBloomFilter.Hashes = 3
	}
}

// Validate checks the invariants spelled out in the configuration
// contract (positive counts, port ranges, unit-interval floats, exactly
// one classifier) and returns a fatal-startup error describing the first
// violation found.
func (s *Settings) Validate() error {
	if s.MetricsStore == "" {
		return errors.E("metrics_store must be set")
	}
	if s.MinimumReadsForParameterEstimation <= 1 {
		return errors.E("minimum_reads_for_parameter_estimation must be > 1")
	}
	if s.MinimumFragmentsForRatioEstimation <= 0 {
		return errors.E("minimum_fragments_for_ratio_estimation must be > 0")
	}
	if s.MinimumMappedBases <= 0 {
		return errors.E("minimum_mapped_bases must be > 0")
	}
	if s.ThinningAccelerator < 0 {
		return errors.E("thinning_accelerator must be >= 0")
	}
	if s.ReadProcessor.BatchSize <= 0 {
		return errors.E("read_processor.batch_size must be > 0")
	}
	if s.ReadProcessor.TargetBaseCount <= 0 {
		return errors.E("read_processor.target_base_count must be > 0")
	}
	if len(s.ReferenceSequences) == 0 {
		return errors.E("reference_sequences must be non-empty")
	}
	seen := make(map[string]bool, len(s.ReferenceSequences))
	for _, rs := range s.ReferenceSequences {
		if rs.Path == "" {
			return errors.E("reference_sequences: path must be set")
		}
		if rs.ExpectedRatio <= 0 {
			return errors.E("reference_sequences: expected_ratio must be > 0", rs.Path)
		}
		if seen[rs.Path] {
			return errors.E("reference_sequences: duplicate stratum path", rs.Path)
		}
		seen[rs.Path] = true
	}
	if s.ReadUntil.Port < 1024 || s.ReadUntil.Port > 65535 {
		return errors.E("read_until.port must be in [1024, 65535]")
	}
	if s.Sequencer.Port < 1024 || s.Sequencer.Port > 65535 {
		return errors.E("sequencer.port must be in [1024, 65535]")
	}
	if s.ReadUntil.Throttle <= 0 || s.ReadUntil.Throttle >= 1 {
		return errors.E("read_until.throttle must be in (0, 1)")
	}
	if s.ReadUntil.DepletionChunks <= 0 {
		return errors.E("read_until.depletion_chunks must be > 0")
	}
	if s.ReadUntil.Basecaller.MaxAttempts <= 0 {
		return errors.E("read_until.basecaller.max_attempts must be > 0")
	}
	if err := s.ReadUntil.Classifier.Validate(); err != nil {
		return err
	}
	if ibf := s.ReadUntil.Classifier.InterleavedBloomFilter; ibf != nil {
		if ibf.FragmentLength <= 0 || ibf.W <= 0 || ibf.K <= 0 || ibf.NumOfBins <= 0 {
			return errors.E("interleaved_bloom_filter: fragment_length, w, k, num_of_bins must all be > 0")
		}
		if ibf.Hashes <= 0 {
			return errors.E("interleaved_bloom_filter: hashes must be > 0")
		}
		if ibf.FPRate <= 0 || ibf.FPRate >= 1 {
			return errors.E("interleaved_bloom_filter: fp_rate must be in (0, 1)")
		}
		if ibf.PreservedPct <= 0 || ibf.PreservedPct >= 1 {
			return errors.E("interleaved_bloom_filter: preserved_pct must be in (0, 1)")
		}
	}
	return nil
}

// Load reads and validates the experiment configuration at path. It is
// the only entry point to Settings: the config is loaded exactly once
// at process startup.
func Load(path string) (*Settings, error) {
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, errors.E(err, "decoding config", path)
	}
	withDefaults(&s)
	if err := s.Validate(); err != nil {
		return nil, errors.E(err, "invalid config", path)
	}
	return &s, nil
}

// ExpectedRatioSum returns the sum of all strata's expected ratios
// ("whole" in the acceptance-rate formula).
func (s *Settings) ExpectedRatioSum() int {
	sum := 0
	for _, rs := range s.ReferenceSequences {
		sum += rs.ExpectedRatio
	}
	return sum
}

// StrataIDs returns the canonical (lexicographically sorted) list of
// stratum ids, i.e. reference sequence paths: the same order the
// estimator manager sorts its strata into for the acceptance-rate
// formula.
func (s *Settings) StrataIDs() []string {
	ids := make([]string, len(s.ReferenceSequences))
	for i, rs := range s.ReferenceSequences {
		ids[i] = rs.Path
	}
	sort.Strings(ids)
	return ids
}
