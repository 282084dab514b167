package regulator

import (
	"time"

	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/livereads"
)

// PackagedRead is one channel's chunk, packaged for submission to a
// basecalling service: raw signal plus the calibration needed to turn it
// into picoamps.
type PackagedRead struct {
	ReadID      string
	Channel     int
	RawData     []byte
	Calibration livereads.Calibration
	SamplingRate float64
	StartSample  uint64
}

// CompletedRead is one basecalled result: the chunk's channel, read id,
// and called sequence. SubTag distinguishes partial/duplicate emissions
// for the same read (a streaming basecaller may flush an in-progress
// read more than once); only the SubTag == 0 emission is the final call.
type CompletedRead struct {
	Channel  int
	ReadID   string
	Sequence string
	SubTag   int
}

// Service is the wire-level contract to a streaming basecalling backend
// (e.g. a Dorado/Guppy server): push packaged reads, pull back whatever
// has completed so far. Pass/CompletedReads must not block past the
// adapter's own retry and polling handling.
type Service interface {
	// Pass attempts to submit reads for basecalling, returning false if
	// the service rejected the batch (e.g. queue full).
	Pass(reads []PackagedRead) bool

	// CompletedReads returns whatever results have finished since the
	// last call, possibly empty.
	CompletedReads() []CompletedRead
}

// Adapter implements the submit/poll/retry contract described for the
// basecall adapter: package each chunk, retry submission up to
// maxAttempts with throttle spacing, then poll until every submitted
// read has returned at least one result.
type Adapter struct {
	service      Service
	samplingRate float64
	throttle     time.Duration
	maxAttempts  int
}

// NewAdapter builds an Adapter wrapping service.
func NewAdapter(service Service, samplingRate float64, settings config.BasecallerSettings, throttle time.Duration) *Adapter {
	return &Adapter{
		service:      service,
		samplingRate: samplingRate,
		throttle:     throttle,
		maxAttempts:  settings.MaxAttempts,
	}
}

// Basecall packages reads, submits them (retrying up to maxAttempts with
// throttle spacing between attempts), then polls until every submitted
// read id has returned at least one result. Returns nil if submission
// never succeeded.
func (a *Adapter) Basecall(reads []livereads.ChannelRead, calibration map[int]livereads.Calibration) []CompletedRead {
	if len(reads) == 0 {
		return nil
	}

	channels := make(map[string]int, len(reads))
	packaged := make([]PackagedRead, 0, len(reads))
	for _, r := range reads {
		channels[r.Read.ID] = r.Channel
		packaged = append(packaged, PackagedRead{
			ReadID:       r.Read.ID,
			Channel:      r.Channel,
			RawData:      r.Read.RawData,
			Calibration:  calibration[r.Channel],
			SamplingRate: a.samplingRate,
			StartSample:  r.Read.StartSample,
		})
	}

	passed := false
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if a.service.Pass(packaged) {
			passed = true
			break
		}
		time.Sleep(a.throttle)
	}
	if !passed {
		log.Error.Printf("could not pass %d reads to the basecaller after %d attempts", len(packaged), a.maxAttempts)
		return nil
	}

	completed := make([]CompletedRead, 0, len(packaged))
	seen := make(map[string]bool, len(packaged))
	for len(seen) < len(packaged) {
		results := a.service.CompletedReads()
		if len(results) == 0 {
			time.Sleep(a.throttle)
			continue
		}
		for _, result := range results {
			if result.SubTag > 0 {
				continue
			}
			if seen[result.ReadID] {
				continue
			}
			seen[result.ReadID] = true
			if ch, ok := channels[result.ReadID]; ok {
				result.Channel = ch
			}
			completed = append(completed, result)
		}
	}
	return completed
}
