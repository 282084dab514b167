// Package strata owns, per reference stratum, the aligner used for
// post-hoc (fully basecalled) alignment, the alignment statistics those
// alignments feed, and the estimator-driven decision of when a stratum's
// accepted reads should start being thinned to approach its configured
// yield ratio.
package strata

import (
	"math/rand"
	"sync"
	"time"

	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/classify"
	"github.com/nanolab/minster/estimator"
	"github.com/nanolab/minster/metrics"
	"github.com/nanolab/minster/nanopore"
)

// record bundles one stratum's static configuration with its mutable
// alignment statistics.
type record struct {
	expectedRatio int
	aligner       *classify.StratumAligner
	stats         *AlignmentStats
}

// Manager owns the stratum -> record mapping. Its map is built once at
// construction and never mutated afterward, so lookups need no locking;
// only the per-record AlignmentStats are mutated concurrently.
type Manager struct {
	records map[string]*record
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{records: make(map[string]*record)}
}

// InsertRecord registers one stratum.
func (m *Manager) InsertRecord(strataID string, expectedRatio int, aligner *classify.StratumAligner, stats *AlignmentStats) {
	m.records[strataID] = &record{expectedRatio: expectedRatio, aligner: aligner, stats: stats}
}

// TotalAlignedLength sums AlignedLength across every stratum.
func (m *Manager) TotalAlignedLength() int {
	total := 0
	for _, r := range m.records {
		total += r.stats.AlignedLength()
	}
	return total
}

// ExpectedRatio returns strataID's configured target ratio.
func (m *Manager) ExpectedRatio(strataID string) int {
	return m.records[strataID].expectedRatio
}

// Aligner returns strataID's post-hoc aligner.
func (m *Manager) Aligner(strataID string) *classify.StratumAligner {
	return m.records[strataID].aligner
}

// UpdateAlignedLength folds length into strataID's running totals.
func (m *Manager) UpdateAlignedLength(strataID string, length int) {
	m.records[strataID].stats.UpdateAlignedLength(length)
}

// AlignedLength returns strataID's cumulative aligned base count.
func (m *Manager) AlignedLength(strataID string) int {
	return m.records[strataID].stats.AlignedLength()
}

// Stats returns strataID's AlignmentStats, for reporting.
func (m *Manager) Stats(strataID string) *AlignmentStats {
	return m.records[strataID].stats
}

// AllStrata returns every registered stratum id, in no particular order.
func (m *Manager) AllStrata() []string {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids
}

// Balancer is the single owner of a stratum's full warm-up and thinning
// decision: it holds the alignment-based Manager (post-hoc coverage per
// stratum) and an estimator.Manager (live log-normal ratio estimation),
// and answers are_all_warmed_up/thin_out? by combining both.
type Balancer struct {
	manager          *Manager
	estimator        *estimator.Manager
	minMappedBases   int
	minReadsForParam int
	commands         *metrics.Bus

	consistentAlgnMu sync.Mutex

	warmedUpOnce sync.Once
}

// NewBalancer builds a Balancer over refs (stratum id -> expected ratio),
// each paired with an already-built StratumAligner and AlignmentStats. A
// stratum is alignment-warmed-up once its aligned length passes
// minMappedBases and its aligned read count passes minReadsForParam.
func NewBalancer(
	refs map[string]int,
	aligners map[string]*classify.StratumAligner,
	stats map[string]*AlignmentStats,
	estimatorManager *estimator.Manager,
	minMappedBases int,
	minReadsForParam int,
	commands *metrics.Bus,
) *Balancer {
	manager := NewManager()
	for strataID, expectedRatio := range refs {
		manager.InsertRecord(strataID, expectedRatio, aligners[strataID], stats[strataID])
	}
	return &Balancer{
		manager:          manager,
		estimator:        estimatorManager,
		minMappedBases:   minMappedBases,
		minReadsForParam: minReadsForParam,
		commands:         commands,
	}
}

// AllStrata returns every registered stratum id.
func (b *Balancer) AllStrata() []string {
	return b.manager.AllStrata()
}

// Stats exposes one stratum's running AlignmentStats.
func (b *Balancer) Stats(strataID string) *AlignmentStats {
	return b.manager.Stats(strataID)
}

// isWarmedUp reports whether strataID alone has crossed both of its
// alignment warm-up thresholds.
func (b *Balancer) isWarmedUp(strataID string) bool {
	stats := b.manager.Stats(strataID)
	return stats.AlignedLength() >= b.minMappedBases && stats.ReadCount() >= b.minReadsForParam
}

// AreAllWarmedUp reports whether every stratum has crossed its alignment
// warm-up thresholds. The counters are re-checked on every call; since
// they only grow, once this returns true it keeps returning true. A
// one-shot status message is logged the first time it does.
func (b *Balancer) AreAllWarmedUp() bool {
	warmedUp := true
	for _, strataID := range b.manager.AllStrata() {
		if !b.isWarmedUp(strataID) {
			warmedUp = false
			break
		}
	}
	if warmedUp {
		b.warmedUpOnce.Do(func() {
			log.Info.Printf("all strata have reached alignment warm-up thresholds")
		})
		return true
	}
	return false
}

// ThinOut reports whether a chunk already classified into strataID
// should be rejected (ejected) to bring the flow cell's aggregate yield
// closer to the configured target ratios. Always false until both the
// alignment-based warm-up and the estimator's own warm-up hold.
func (b *Balancer) ThinOut(strataID string) bool {
	if !b.AreAllWarmedUp() || !b.estimator.AreAllWarmedUp() {
		return false
	}
	acceptanceRate := b.estimator.GetAcceptanceRate(strataID)
	return rand.Float64() > acceptanceRate
}

// UpdateEstimatedReceivedBases forwards one classification hit for
// strataID to the estimator.
func (b *Balancer) UpdateEstimatedReceivedBases(strataID string) {
	b.estimator.UpdateEstimatedReceivedBases(strataID)
}

// UpdateAlignments aligns every read in reads against every registered
// stratum's post-hoc aligner, assigns each read to the single
// best-scoring primary hit (if any), folds its length into that
// stratum's AlignmentStats and estimator record, and emits a
// RecordBasecalledReadCommand onto the metrics bus.
func (b *Balancer) UpdateAlignments(reads []*nanopore.Read) {
	for _, read := range reads {
		bestStrataID, _, ok := b.bestHit(read.Sequence)
		if !ok {
			continue
		}

		b.consistentAlgnMu.Lock()
		b.manager.UpdateAlignedLength(bestStrataID, len(read.Sequence))
		b.consistentAlgnMu.Unlock()

		b.estimator.AddEntireRead(bestStrataID, len(read.Sequence))

		b.commands.Send(metrics.NewRecordBasecalledReadCommand(read.ReadID, bestStrataID, read.Length, time.Now()))
	}
}

func (b *Balancer) bestHit(sequence string) (string, classify.Hit, bool) {
	var (
		bestStrataID string
		best         classify.Hit
		haveHit      bool
	)
	for _, strataID := range b.manager.AllStrata() {
		hits := b.manager.Aligner(strataID).Map([]byte(sequence))
		for _, hit := range hits {
			if !hit.IsPrimary {
				continue
			}
			if !haveHit || hit.Better(best) {
				best = hit
				bestStrataID = strataID
				haveHit = true
			}
		}
	}
	return bestStrataID, best, haveHit
}
