// Package readproc implements the post-hoc read processor: a bounded
// in-memory queue of fully-basecalled reads, flushed by either queue
// size or accumulated base count, feeding the strata balancer's
// alignment-based estimators.
package readproc

import (
	"sync"

	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/classify"
	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/nanopore"
	"github.com/nanolab/minster/strata"
)

// Processor batches incoming fully-basecalled reads and periodically
// drains them into the strata balancer. Reads previously recorded as
// ejected are dropped on enqueue: they are the on-disk tail of a read
// the pore already rejected, and would bias the stratum estimators if
// counted.
type Processor struct {
	classifier classify.Classifier
	balancer   *strata.Balancer
	fragments  *nanopore.FragmentCollection

	batchSize       int
	targetBaseCount int

	mu               sync.Mutex
	cond             *sync.Cond
	queue            []*nanopore.Read
	quitting         bool
	baseCount        int
	classifierActive bool
}

// New builds a Processor from its collaborators and configuration.
func New(
	classifier classify.Classifier,
	balancer *strata.Balancer,
	fragments *nanopore.FragmentCollection,
	settings config.ReadProcessorSettings,
) *Processor {
	p := &Processor{
		classifier:      classifier,
		balancer:        balancer,
		fragments:       fragments,
		batchSize:       settings.BatchSize,
		targetBaseCount: settings.TargetBaseCount,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// AddRead enqueues read, dropping it silently if its id has already been
// recorded in the fragment collection (ejected by the regulator before
// its on-disk tail was basecalled).
func (p *Processor) AddRead(read *nanopore.Read) {
	if p.fragments.Contains(read.ReadID) {
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, read)
	p.baseCount += read.Length
	if len(p.queue) >= p.batchSize || p.baseCount >= p.targetBaseCount {
		p.cond.Signal()
	}
	p.mu.Unlock()
}

// Quit requests that Process return once the last flush, if any, has
// drained. Idempotent.
func (p *Processor) Quit() {
	p.mu.Lock()
	p.quitting = true
	p.cond.Signal()
	p.mu.Unlock()
}

// Process drains batches until Quit is called, feeding each batch to the
// strata balancer and, once every stratum is warmed up, activating the
// classifier for every stratum exactly once.
func (p *Processor) Process() {
	for {
		batch := p.nextBatch()
		if batch == nil {
			return
		}

		p.balancer.UpdateAlignments(batch)

		if !p.classifierActive && p.balancer.AreAllWarmedUp() {
			for _, strataID := range p.balancer.AllStrata() {
				p.classifier.ActivateSequences(strataID)
			}
			p.classifierActive = true
			log.Info.Printf("classifier activated for %d strata", len(p.balancer.AllStrata()))
		}
	}
}

// nextBatch blocks until either a flush trigger fires or Quit has been
// called, then pops up to batchSize reads (stopping once the batch holds
// targetBaseCount bases or more) and returns them. Returns nil once
// Quit has drained every remaining read.
func (p *Processor) nextBatch() []*nanopore.Read {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.quitting && len(p.queue) < p.batchSize && p.baseCount < p.targetBaseCount {
		p.cond.Wait()
	}
	if len(p.queue) == 0 && p.quitting {
		return nil
	}

	var batch []*nanopore.Read
	batchedBases := 0
	for len(p.queue) > 0 && len(batch) < p.batchSize && batchedBases < p.targetBaseCount {
		read := p.queue[0]
		p.queue = p.queue[1:]
		p.baseCount -= read.Length
		batchedBases += read.Length
		batch = append(batch, read)
	}
	return batch
}
