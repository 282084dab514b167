// Package regulator implements the read-until hot loop: fetch live
// chunks, basecall them, classify them, and emit eject/stop-receiving
// decisions under a tight per-cycle time budget.
package regulator

import (
	"time"

	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/classify"
	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/livereads"
	"github.com/nanolab/minster/metrics"
	"github.com/nanolab/minster/nanopore"
	"github.com/nanolab/minster/strata"
)

// Regulator interfaces with a live-reads client, a basecall adapter, a
// classifier, and a strata balancer to eject reads originating from
// overrepresented strata.
type Regulator struct {
	client          livereads.Client
	adapter         *Adapter
	classifier      classify.Classifier
	balancer        *strata.Balancer
	fragments       *nanopore.FragmentCollection
	commands        *metrics.Bus
	depletionChunks int
	throttle        time.Duration
}

// New builds a Regulator from its already-constructed collaborators.
func New(
	client livereads.Client,
	adapter *Adapter,
	classifier classify.Classifier,
	balancer *strata.Balancer,
	fragments *nanopore.FragmentCollection,
	commands *metrics.Bus,
	settings config.ReadUntilSettings,
) *Regulator {
	return &Regulator{
		client:          client,
		adapter:         adapter,
		classifier:      classifier,
		balancer:        balancer,
		fragments:       fragments,
		commands:        commands,
		depletionChunks: settings.DepletionChunks,
		throttle:        settings.ThrottleDuration(),
	}
}

// Run starts the underlying live-reads client streaming.
func (r *Regulator) Run() { r.client.Run() }

// Reset stops the underlying live-reads client, causing IsRunning to
// flip false and RunRegulationLoop to return on its next cycle check.
func (r *Regulator) Reset() { r.client.Reset() }

// RunRegulationLoop cycles every r.throttle until the live-reads client
// stops running: fetch the newest chunk per channel, basecall it,
// classify it, and either unblock (eject), stop-receiving (keep but
// silence), or leave the read alone pending more chunks.
func (r *Regulator) RunRegulationLoop() {
	fragmentsCount := make(map[string]int)

	for r.client.IsRunning() {
		cycleStart := time.Now()

		var stopReceivingBatch []livereads.ReadData
		var unblockBatch []livereads.ReadData

		chunks := r.client.GetReadChunks(r.client.ChannelCount(), true)
		basecalled := r.adapter.Basecall(chunks, r.client.CalibrationValues())

		for _, completed := range basecalled {
			matchedStrataID, matched := r.classifier.IsSequencePresent([]byte(completed.Sequence))
			r.commands.TrySend(metrics.NewRecordClassifiedReadCommand(completed.ReadID, matchedStrataID, time.Now()))

			readData := livereads.ReadData{ID: completed.ReadID}
			cleanUp := false

			if matched {
				r.balancer.UpdateEstimatedReceivedBases(matchedStrataID)
				if r.balancer.ThinOut(matchedStrataID) {
					r.fragments.Add(completed.ReadID)
					unblockBatch = append(unblockBatch, readData)
				} else {
					stopReceivingBatch = append(stopReceivingBatch, readData)
				}
				cleanUp = true
			} else {
				fragmentsCount[completed.ReadID]++
				if fragmentsCount[completed.ReadID] >= r.depletionChunks {
					stopReceivingBatch = append(stopReceivingBatch, readData)
					cleanUp = true
				}
			}

			if cleanUp {
				delete(fragmentsCount, completed.ReadID)
			}
		}

		r.client.UnblockReadBatch(unblockBatch)
		r.client.StopReceivingBatch(stopReceivingBatch)

		elapsed := time.Since(cycleStart)
		if remaining := r.throttle - elapsed; remaining > 0 {
			time.Sleep(remaining)
		} else {
			log.Error.Printf("regulation cycle overran throttle: took %s, budget %s", elapsed, r.throttle)
		}
	}
	log.Info.Printf("regulation loop stopped")
}
