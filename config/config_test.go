package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validMappyConfig = `
metrics_store = "metrics.db"
minimum_reads_for_parameter_estimation = 10
minimum_fragments_for_ratio_estimation = 5
minimum_mapped_bases = 1000
thinning_accelerator = 0

[read_processor]
batch_size = 5000
target_base_count = 1000000

[[reference_sequences]]
path = "genomeA.fa"
expected_ratio = 1

[[reference_sequences]]
path = "genomeB.fa"
expected_ratio = 3

[sequencer]
name = "MN12345"

[read_until]
[read_until.basecaller]
config = "dna_r10.4.1"

[read_until.classifier.mappy]
`

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, validMappyConfig)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost", s.Sequencer.Host)
	assert.Equal(t, 9501, s.Sequencer.Port)
	assert.Equal(t, "127.0.0.1", s.ReadUntil.Host)
	assert.Equal(t, 8000, s.ReadUntil.Port)
	assert.Equal(t, "ipc:///tmp/.guppy/5555", s.ReadUntil.Basecaller.Address)
	assert.Equal(t, 3, s.ReadUntil.Basecaller.MaxAttempts)
	assert.Equal(t, 4, s.ReadUntil.DepletionChunks)
	assert.InDelta(t, 0.1, s.ReadUntil.Throttle, 1e-9)
	assert.NotNil(t, s.ReadUntil.Classifier.Mappy)
	assert.Nil(t, s.ReadUntil.Classifier.InterleavedBloomFilter)
	assert.Equal(t, 4, s.ExpectedRatioSum())
	assert.Equal(t, []string{"genomeA.fa", "genomeB.fa"}, s.StrataIDs())
}

func TestLoadRejectsNoClassifier(t *testing.T) {
	body := `
metrics_store = "metrics.db"
minimum_reads_for_parameter_estimation = 10
minimum_fragments_for_ratio_estimation = 5
minimum_mapped_bases = 1000
thinning_accelerator = 0

[read_processor]
batch_size = 5000
target_base_count = 1000000

[[reference_sequences]]
path = "genomeA.fa"
expected_ratio = 1

[sequencer]
name = "MN12345"

[read_until]
[read_until.basecaller]
config = "dna_r10.4.1"
[read_until.classifier]
`
	path := writeConfig(t, body)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestLoadRejectsBothClassifiers(t *testing.T) {
	body := validMappyConfig + `
[read_until.classifier.interleaved_bloom_filter]
fragment_length = 400
w = 23
k = 15
num_of_bins = 2
fp_rate = 0.001
preserved_pct = 0.9
`
	path := writeConfig(t, body)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestLoadRejectsBadDepletionChunks(t *testing.T) {
	body := strings.Replace(validMappyConfig, "[read_until]\n", "[read_until]\ndepletion_chunks = -1\n", 1)
	path := writeConfig(t, body)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depletion_chunks")
}

func TestIBFDefaultsHashCount(t *testing.T) {
	body := `
metrics_store = "metrics.db"
minimum_reads_for_parameter_estimation = 10
minimum_fragments_for_ratio_estimation = 5
minimum_mapped_bases = 1000
thinning_accelerator = 0

[read_processor]
batch_size = 5000
target_base_count = 1000000

[[reference_sequences]]
path = "genomeA.fa"
expected_ratio = 1

[sequencer]
name = "MN12345"

[read_until]
[read_until.basecaller]
config = "dna_r10.4.1"

[read_until.classifier.interleaved_bloom_filter]
fragment_length = 400
w = 23
k = 15
num_of_bins = 1
fp_rate = 0.001
preserved_pct = 0.9
`
	path := writeConfig(t, body)
	s, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, s.ReadUntil.Classifier.InterleavedBloomFilter)
	assert.Equal(t, 3, s.ReadUntil.Classifier.InterleavedBloomFilter.Hashes)
}
