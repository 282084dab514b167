// Package watch observes a run's output directory for newly written
// FASTQ files and hands each basecalled, passing read to a read
// processor.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/nanopore"
)

// Reader accepts fully-basecalled, passing reads. Satisfied by
// *readproc.Processor.
type Reader interface {
	AddRead(read *nanopore.Read)
}

var fastqSuffixes = []string{".fastq", ".fastq.gz", ".fq", ".fq.gz"}

func isFastqPath(path string) bool {
	for _, suffix := range fastqSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Watcher observes a directory tree for newly created FASTQ files,
// parses each, and forwards passing reads to a Reader.
type Watcher struct {
	watcher *fsnotify.Watcher
	reader  Reader
	done    chan struct{}
}

// New creates a Watcher over reader. Call Start to begin observing.
func New(reader Reader) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: fsWatcher, reader: reader, done: make(chan struct{})}, nil
}

// WaitForDirectory polls every second until dir exists, then returns.
func WaitForDirectory(dir string, exists func(string) bool) {
	for !exists(dir) {
		time.Sleep(time.Second)
	}
}

// Start watches dir recursively: fsnotify does not recurse on its own,
// so every existing subdirectory is added up front, and every
// subdirectory created afterward is added as its creation event
// arrives. Processing runs in a dedicated goroutine.
func (w *Watcher) Start(dir string) error {
	if err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					log.Error.Printf("watching new directory %s: %v", event.Name, err)
				}
				continue
			}
			if !isFastqPath(event.Name) {
				continue
			}
			w.handleCreated(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleCreated(path string) {
	if err := ParseFastqFile(path, w.reader); err != nil {
		log.Error.Printf("parsing %s: %v", path, err)
	}
}

// Stop terminates the watcher's event loop and closes the underlying
// fsnotify watcher. Idempotent is not guaranteed for repeated calls;
// callers should call Stop at most once.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
