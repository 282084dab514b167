package watch

import (
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/encoding/fastq"
	"github.com/nanolab/minster/nanopore"
)

// ParseFastqFile reads every record from the FASTQ file at path (plain
// or gzip-compressed, per its extension), builds a Read per record via
// ReadDirector, and forwards every passing read to reader. Failing reads
// are skipped; malformed records are skipped with a warning. A read id
// longer than 64 characters (nanopore.ErrUnsupported1D2) is fatal.
func ParseFastqFile(path string, reader Reader) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.E(err, "opening FASTQ file", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.E(err, "opening gzip FASTQ file", path)
		}
		defer gz.Close()
		r = gz
	}

	scanner := fastq.NewScanner(r, fastq.All)
	var raw fastq.Read
	for scanner.Scan(&raw) {
		record := raw
		read, err := nanopore.NewReadDirector(&record, path).ConstructRead()
		if err == nanopore.ErrUnsupported1D2 {
			log.Fatalf("%s: %v", path, err)
		}
		if err != nil {
			log.Error.Printf("skipping malformed FASTQ record in %s: %v", path, err)
			continue
		}
		if !read.IsPass() {
			continue
		}
		reader.AddRead(read)
	}
	if err := scanner.Err(); err != nil {
		return errors.E(err, "scanning FASTQ file", path)
	}
	return nil
}
