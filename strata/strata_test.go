package strata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanolab/minster/classify"
	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/encoding/fasta"
	"github.com/nanolab/minster/estimator"
	"github.com/nanolab/minster/metrics"
	"github.com/nanolab/minster/nanopore"
)

func fastaFromString(t *testing.T, name, seq string) fasta.Fasta {
	t.Helper()
	f, err := fasta.New(strings.NewReader(">" + name + "\n" + seq + "\n"))
	require.NoError(t, err)
	return f
}

func TestAlignmentStatsAccumulate(t *testing.T) {
	ref := fastaFromString(t, "chr1", strings.Repeat("ACGT", 250))
	stats, err := NewAlignmentStats("genomeA.fa", ref)
	require.NoError(t, err)

	stats.UpdateAlignedLength(500)
	stats.UpdateAlignedLength(300)

	assert.Equal(t, 800, stats.AlignedLength())
	assert.Equal(t, 2, stats.ReadCount())
	assert.Equal(t, 400.0, stats.MeanReadLength())
	assert.InDelta(t, 800.0, stats.MeanCoverage(), 1e-9)
}

func TestManagerTotalAlignedLength(t *testing.T) {
	refA := fastaFromString(t, "chr1", strings.Repeat("ACGT", 100))
	refB := fastaFromString(t, "chr1", strings.Repeat("TTGG", 100))
	statsA, err := NewAlignmentStats("genomeA.fa", refA)
	require.NoError(t, err)
	statsB, err := NewAlignmentStats("genomeB.fa", refB)
	require.NoError(t, err)

	m := NewManager()
	m.InsertRecord("genomeA.fa", 1, nil, statsA)
	m.InsertRecord("genomeB.fa", 3, nil, statsB)

	m.UpdateAlignedLength("genomeA.fa", 100)
	m.UpdateAlignedLength("genomeB.fa", 300)

	assert.Equal(t, 400, m.TotalAlignedLength())
	assert.ElementsMatch(t, []string{"genomeA.fa", "genomeB.fa"}, m.AllStrata())
}

func buildTestBalancer(t *testing.T) (*Balancer, map[string]string) {
	t.Helper()
	genomeA := strings.Repeat("ACGTTGCAGGTCCAATGACGTTGCA", 20)
	genomeB := strings.Repeat("TTGGCCAATTGGCCAATTGGCCAAT", 20)

	refA := fastaFromString(t, "chr1", genomeA)
	refB := fastaFromString(t, "chr1", genomeB)

	alignerA, err := classify.NewStratumAligner("genomeA.fa", refA)
	require.NoError(t, err)
	alignerB, err := classify.NewStratumAligner("genomeB.fa", refB)
	require.NoError(t, err)

	statsA, err := NewAlignmentStats("genomeA.fa", refA)
	require.NoError(t, err)
	statsB, err := NewAlignmentStats("genomeB.fa", refB)
	require.NoError(t, err)

	estimatorManager := estimator.NewManager(
		[]config.ReferenceSequence{
			{Path: "genomeA.fa", ExpectedRatio: 1},
			{Path: "genomeB.fa", ExpectedRatio: 3},
		},
		5,
		0,
	)

	bus := metrics.NewBus(16)
	balancer := NewBalancer(
		map[string]int{"genomeA.fa": 1, "genomeB.fa": 3},
		map[string]*classify.StratumAligner{"genomeA.fa": alignerA, "genomeB.fa": alignerB},
		map[string]*AlignmentStats{"genomeA.fa": statsA, "genomeB.fa": statsB},
		estimatorManager,
		300,
		3,
		bus,
	)
	return balancer, map[string]string{"genomeA.fa": genomeA, "genomeB.fa": genomeB}
}

func TestBalancerWarmUp(t *testing.T) {
	balancer, genomes := buildTestBalancer(t)
	assert.False(t, balancer.AreAllWarmedUp())

	reads := []*nanopore.Read{
		{ReadID: "r1", Sequence: genomes["genomeA.fa"][0:100], Length: 100},
		{ReadID: "r2", Sequence: genomes["genomeB.fa"][0:100], Length: 100},
	}
	for i := 0; i < 5; i++ {
		balancer.UpdateAlignments(reads)
	}

	assert.True(t, balancer.AreAllWarmedUp())
}

func TestBalancerUpdateAlignmentsAssignsBestStratum(t *testing.T) {
	balancer, genomes := buildTestBalancer(t)
	reads := []*nanopore.Read{
		{ReadID: "r1", Sequence: genomes["genomeA.fa"][0:100], Length: 100},
	}
	balancer.UpdateAlignments(reads)
	assert.Equal(t, 100, balancer.Stats("genomeA.fa").AlignedLength())
	assert.Equal(t, 0, balancer.Stats("genomeB.fa").AlignedLength())
}
