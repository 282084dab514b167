// minster runs dynamic adaptive sampling against a nanopore sequencer:
// it consumes live read-until chunks, classifies them against a set of
// reference genomes ("strata"), and ejects overrepresented reads so
// final per-genome yield approaches a configured target ratio.
//
// Usage:
//
//	minster --config experiment.toml --simulated-dir /path/to/run
package main

import (
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/classify"
	"github.com/nanolab/minster/config"
	"github.com/nanolab/minster/encoding/fasta"
	"github.com/nanolab/minster/estimator"
	"github.com/nanolab/minster/livereads"
	"github.com/nanolab/minster/metrics"
	"github.com/nanolab/minster/nanopore"
	"github.com/nanolab/minster/readproc"
	"github.com/nanolab/minster/regulator"
	"github.com/nanolab/minster/strata"
	"github.com/nanolab/minster/watch"
)

func loadReferences(settings *config.Settings) (map[string]fasta.Fasta, error) {
	references := make(map[string]fasta.Fasta, len(settings.ReferenceSequences))
	for _, rs := range settings.ReferenceSequences {
		f, err := os.Open(rs.Path)
		if err != nil {
			return nil, errors.E(err, "opening reference sequence", rs.Path)
		}
		ref, err := fasta.New(f, fasta.OptClean)
		f.Close()
		if err != nil {
			return nil, errors.E(err, "parsing reference sequence", rs.Path)
		}
		references[rs.Path] = ref
	}
	return references, nil
}

func buildBalancer(
	settings *config.Settings,
	references map[string]fasta.Fasta,
	aligners map[string]*classify.StratumAligner,
	commands *metrics.Bus,
) (*strata.Balancer, error) {
	expectedRatios := make(map[string]int, len(settings.ReferenceSequences))
	stats := make(map[string]*strata.AlignmentStats, len(settings.ReferenceSequences))
	for _, rs := range settings.ReferenceSequences {
		expectedRatios[rs.Path] = rs.ExpectedRatio
		s, err := strata.NewAlignmentStats(rs.Path, references[rs.Path])
		if err != nil {
			return nil, errors.E(err, "building alignment stats", rs.Path)
		}
		stats[rs.Path] = s
	}

	estimatorManager := estimator.NewManager(
		settings.ReferenceSequences,
		settings.MinimumFragmentsForRatioEstimation,
		settings.ThinningAccelerator,
	)

	return strata.NewBalancer(
		expectedRatios,
		aligners,
		stats,
		estimatorManager,
		settings.MinimumMappedBases,
		settings.MinimumReadsForParameterEstimation,
		commands,
	), nil
}

func main() {
	configPath := flag.String("config", "", "Path to the experiment configuration TOML file")
	simulatedDir := flag.String("simulated-dir", "", "Directory watched for basecalled FASTQ files; a simulated live-reads client built from the reference sequences replaces the live sequencer connection")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("--config is required")
	}

	cleanup := grail.Init()
	defer cleanup()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	metricsStore, err := metrics.OpenStore(settings.MetricsStore)
	if err != nil {
		log.Fatal(errors.E(err, "opening metrics store"))
	}
	commands := metrics.NewBus(1024)
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		if err := commands.Run(metricsStore); err != nil {
			log.Error.Printf("metrics consumer exited: %v", err)
		}
	}()

	log.Printf("loading %d reference sequences", len(settings.ReferenceSequences))
	references, err := loadReferences(settings)
	if err != nil {
		log.Fatal(err)
	}

	classifierFactory := classify.NewFactory(references)
	aligners, err := classifierFactory.Aligners()
	if err != nil {
		log.Fatal(err)
	}
	classifier, err := classifierFactory.Create(settings.ReadUntil.Classifier, aligners)
	if err != nil {
		log.Fatal(err)
	}

	balancer, err := buildBalancer(settings, references, aligners, commands)
	if err != nil {
		log.Fatal(err)
	}

	fragments := nanopore.NewFragmentCollection()

	if *simulatedDir == "" {
		log.Fatal("connecting to a live sequencer is out of scope for this build; pass --simulated-dir")
	}

	referenceList := make([]fasta.Fasta, 0, len(references))
	for _, ref := range references {
		referenceList = append(referenceList, ref)
	}
	client := livereads.NewSimulated(referenceList, 512, 450, 1)
	service := regulator.NewSimulatedService()
	adapter := regulator.NewAdapter(service, 4000, settings.ReadUntil.Basecaller, settings.ReadUntil.ThrottleDuration())

	reg := regulator.New(client, adapter, classifier, balancer, fragments, commands, settings.ReadUntil)

	processor := readproc.New(classifier, balancer, fragments, settings.ReadProcessor)

	watcher, err := watch.New(processor)
	if err != nil {
		log.Fatal(errors.E(err, "building FASTQ watcher"))
	}

	watch.WaitForDirectory(*simulatedDir, func(dir string) bool {
		_, statErr := os.Stat(dir)
		return statErr == nil
	})
	if err := watcher.Start(*simulatedDir); err != nil {
		log.Fatal(errors.E(err, "starting FASTQ watcher"))
	}

	var workersWG sync.WaitGroup
	workersWG.Add(2)

	reg.Run()
	go func() {
		defer workersWG.Done()
		reg.RunRegulationLoop()
	}()
	go func() {
		defer workersWG.Done()
		processor.Process()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Printf("shutting down")
	watcher.Stop()
	processor.Quit()
	reg.Reset()
	commands.Shutdown()

	waitWithTimeout(&workersWG, 10*time.Second, "regulator/processor")
	consumerWG.Wait()

	log.Printf("shutdown complete")
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration, name string) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Error.Printf("%s did not shut down within %s", name, timeout)
	}
}
