// Package estimator tracks, per stratum, a running estimate of how many
// bases that stratum has received so far, and turns those estimates into
// the per-chunk acceptance rate the regulator thins classification hits
// with to approach each stratum's configured yield ratio.
package estimator

import (
	"math"
	"sort"
	"sync"

	"github.com/nanolab/minster/config"
)

// Record maintains a numerically stable online estimate of the mean and
// variance of log(read length) for one stratum (Welford's algorithm:
// https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance),
// plus a simple count of reads counted toward the stratum's estimated
// received-bases total.
type Record struct {
	strataID                           string
	minimumFragmentsForRatioEstimation int

	mu                     sync.Mutex
	logMeanLength          float64
	logSquaredDifference   float64
	readCount              int
	estimatedReadsReceived int
}

func newRecord(strataID string, minimumFragmentsForRatioEstimation int) *Record {
	return &Record{strataID: strataID, minimumFragmentsForRatioEstimation: minimumFragmentsForRatioEstimation}
}

// AddEntireRead folds one read's length into the running log-length
// mean/variance estimate. Called once a read's fragments are all
// accounted for (ejected or let-finish), never per-chunk.
func (r *Record) AddEntireRead(sequenceLength int) {
	logLength := math.Log(float64(sequenceLength))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readCount++
	delta := logLength - r.logMeanLength
	r.logMeanLength += delta / float64(r.readCount)
	delta2 := logLength - r.logMeanLength
	r.logSquaredDifference += delta * delta2
}

// LogMean returns the running mean of log(read length).
func (r *Record) LogMean() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logMeanLength
}

// LogVariance returns the running (sample) variance of log(read length),
// or 0 until at least two reads have been counted.
func (r *Record) LogVariance() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logVarianceLocked()
}

func (r *Record) logVarianceLocked() float64 {
	if r.readCount <= 1 {
		return 0
	}
	return r.logSquaredDifference / float64(r.readCount-1)
}

// EstimatedBasesReceived returns the stratum's estimated total received
// bases, extrapolating the log-normal read-length distribution's mean
// (exp(mu + sigma^2/2)) across every read counted so far via
// UpdateEstimatedReceivedBases.
func (r *Record) EstimatedBasesReceived() float64 {
	r.mu.Lock()
	exponent := r.logMeanLength + r.logVarianceLocked()/2
	estimatedReads := r.estimatedReadsReceived
	r.mu.Unlock()
	return math.Exp(exponent) * float64(estimatedReads)
}

// EstimatedReadsReceived returns the count of reads folded into the
// estimated-bases total via UpdateEstimatedReceivedBases.
func (r *Record) EstimatedReadsReceived() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.estimatedReadsReceived
}

// UpdateEstimatedReceivedBases counts one more read toward the
// estimated-bases total. Distinct from AddEntireRead: this increments
// unconditionally on every classification hit for the stratum, while
// AddEntireRead only folds length into the mean/variance once a read
// completes.
func (r *Record) UpdateEstimatedReceivedBases() {
	r.mu.Lock()
	r.estimatedReadsReceived++
	r.mu.Unlock()
}

// IsRatioEstimationWarmedUp reports whether enough reads have been
// counted for this stratum's acceptance rate to be trusted.
func (r *Record) IsRatioEstimationWarmedUp() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.estimatedReadsReceived >= r.minimumFragmentsForRatioEstimation
}

// Manager owns one Record per stratum and computes the acceptance rate
// each stratum should be thinned to, given every stratum's current
// estimated representation against its configured target ratio.
type Manager struct {
	targetRatios map[string]int
	beta         int
	strataIDs    []string

	mu            sync.Mutex
	observedBases map[string]int

	records map[string]*Record
}

// NewManager builds a Manager from the configured reference sequences.
// beta is the thinning accelerator (spec config field
// thinning_accelerator): 0 disables the exponential acceleration term.
func NewManager(referenceSequences []config.ReferenceSequence, minimumFragmentsForRatioEstimation, beta int) *Manager {
	m := &Manager{
		targetRatios:  make(map[string]int, len(referenceSequences)),
		beta:          beta,
		observedBases: make(map[string]int, len(referenceSequences)),
		records:       make(map[string]*Record, len(referenceSequences)),
	}
	for _, rs := range referenceSequences {
		m.targetRatios[rs.Path] = rs.ExpectedRatio
		m.observedBases[rs.Path] = 0
		m.records[rs.Path] = newRecord(rs.Path, minimumFragmentsForRatioEstimation)
	}
	m.strataIDs = make([]string, 0, len(referenceSequences))
	for id := range m.records {
		m.strataIDs = append(m.strataIDs, id)
	}
	sort.Strings(m.strataIDs)
	return m
}

// Record returns the stratum's underlying estimator record, for callers
// (the strata balancer) that need to feed AddEntireRead directly.
func (m *Manager) Record(strataID string) *Record {
	return m.records[strataID]
}

// AreAllWarmedUp reports whether every stratum has seen enough reads for
// its acceptance rate to be trusted.
func (m *Manager) AreAllWarmedUp() bool {
	for _, r := range m.records {
		if !r.IsRatioEstimationWarmedUp() {
			return false
		}
	}
	return true
}

// AddEntireRead folds a completed read's length into strataID's
// mean/variance estimate and its observed-bases total (used for the L1
// distance term, not the estimated-bases term).
func (m *Manager) AddEntireRead(strataID string, sequenceLength int) {
	m.mu.Lock()
	m.observedBases[strataID] += sequenceLength
	m.mu.Unlock()
	m.records[strataID].AddEntireRead(sequenceLength)
}

// UpdateEstimatedReceivedBases counts one more classification hit for
// strataID toward its estimated-bases total.
func (m *Manager) UpdateEstimatedReceivedBases(strataID string) {
	m.records[strataID].UpdateEstimatedReceivedBases()
}

// GetAcceptanceRate computes the probability that a chunk classified
// into strataID should be accepted (let to continue sequencing) rather
// than ejected, so that the flow cell's aggregate yield approaches the
// configured target ratios.
//
// The rate is built in two stages. First, every stratum's estimated
// bases-received is normalized by its target ratio to get a
// "representation" figure; the worst-represented stratum anchors the
// scale, and strataID's raw acceptance rate is its representation
// relative to that anchor. Second, an exponent alpha >= 1 sharpens (or
// leaves unchanged) that raw rate based on how far the *observed* base
// proportions across strata currently sit from the *target* proportions
// (an L1/2 distance in [0, 1)): the further off, the more aggressively
// thinning accelerates, scaled by the configured beta.
func (m *Manager) GetAcceptanceRate(strataID string) float64 {
	keys := m.strataIDs

	estimatedReceivedBases := make([]float64, len(keys))
	for i, k := range keys {
		estimatedReceivedBases[i] = m.records[k].EstimatedBasesReceived()
	}
	totalEstimatedReceivedBases := sumFloat(estimatedReceivedBases)

	targetRatios := make([]float64, len(keys))
	for i, k := range keys {
		targetRatios[i] = float64(m.targetRatios[k])
	}
	targetWhole := sumFloat(targetRatios)

	representation := make([]float64, len(keys))
	minIndex := 0
	for i := range keys {
		representation[i] = (estimatedReceivedBases[i] * targetWhole) / (targetRatios[i] * totalEstimatedReceivedBases)
		if representation[i] < representation[minIndex] {
			minIndex = i
		}
	}

	targetPart := float64(m.targetRatios[strataID])
	estimatedReceivedPart := m.records[strataID].EstimatedBasesReceived()
	acceptanceRate := (targetPart * estimatedReceivedBases[minIndex]) / (targetRatios[minIndex] * estimatedReceivedPart)

	m.mu.Lock()
	observedBases := make([]float64, len(keys))
	for i, k := range keys {
		observedBases[i] = float64(m.observedBases[k])
	}
	m.mu.Unlock()
	totalObservedBases := sumFloat(observedBases)

	distance := 0.0
	for i := range keys {
		observedProportion := observedBases[i] / totalObservedBases
		targetProportion := targetRatios[i] / targetWhole
		distance += math.Abs(observedProportion - targetProportion)
	}
	distance = 0.5 * distance
	if distance > 1-1e-5 {
		distance = 1 - 1e-5
	}

	alpha := math.Max(1.0, -1*math.Log(1-distance)*float64(m.beta))

	rate := math.Pow(acceptanceRate, alpha)
	if rate > 1 || math.IsInf(rate, 1) {
		return 1
	}
	return rate
}

func sumFloat(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}
