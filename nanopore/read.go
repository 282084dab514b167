// Package nanopore holds the data model for basecalled nanopore reads:
// the immutable Read record built from a FASTQ entry, the builder/director
// pair that assembles one from a minKNOW-style FASTQ header, and the
// fragment collection used to suppress post-hoc data for ejected reads.
package nanopore

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/nanolab/minster/biosimd"
	"github.com/nanolab/minster/encoding/fastq"
)

// ErrUnsupported1D2 is returned when a read id longer than 64 characters
// is encountered. Such ids signal 1D² (duplex) basecalling, which this
// system does not support; this is an invariant violation, not a
// branch point, per the regulator's error-handling design.
var ErrUnsupported1D2 = errors.E("read id exceeds 64 characters: 1D2 mode is not supported")

// Read is an immutable, fully-basecalled nanopore read, built from one
// FASTQ record plus the path it was read from.
type Read struct {
	ReadID    string
	RunID     string
	FastqPath string
	StartTime time.Time
	Channel   *uint16
	Barcode   *string
	ReadIndex *int
	QualityAvg float64
	Sequence  string
	Length    int
}

// IsPass derives pass/fail status from the FASTQ path layout mandated by
// minKNOW: .../{ext}_{status}/{flow_cell_id}_{run_id}_{batch}.{ext}, where
// {ext}_{status} is the read's grandparent directory (e.g. fastq_pass,
// fastq_fail). Any other layout is treated as fail, with a warning.
func (r *Read) IsPass() bool {
	dir := filepath.Dir(r.FastqPath)
	grandparent := filepath.Base(dir)
	switch grandparent {
	case "fastq_pass":
		return true
	case "fastq_fail":
		return false
	default:
		log.Error.Printf("%s does not comply with the minKNOW fastq_pass/fastq_fail layout", r.FastqPath)
		return false
	}
}

// MeanQScore computes the mean Phred quality score from a FASTQ quality
// string (Phred+33 encoding), following the log-domain averaging minKNOW
// itself uses: Q = -10*log10(mean(10^(-q/10))).
func MeanQScore(qual string) float64 {
	if len(qual) == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < len(qual); i++ {
		q := float64(qual[i]) - 33
		sum += math.Pow(10, -q/10)
	}
	mean := sum / float64(len(qual))
	return -10 * math.Log10(mean)
}

// descriptionDict is the parsed set of space-separated key=value tokens
// from a FASTQ description line.
type descriptionDict map[string]string

var recognizedKeys = map[string]string{
	"runid": "run_id",
}

func parseDescription(description string) descriptionDict {
	d := make(descriptionDict)
	for _, item := range strings.Fields(description) {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := parts[0]
		if canonical, ok := recognizedKeys[key]; ok {
			key = canonical
		}
		d[key] = parts[1]
	}
	return d
}

// ReadBuilder incrementally assembles a Read from a parsed FASTQ record.
type ReadBuilder struct {
	fastqPath string
	rawRead   *fastq.Read
	runID     string
	startTime time.Time

	readIndex *int
	channel   *uint16
	barcode   *string
}

// NewReadBuilder starts a new builder for the given raw FASTQ read.
func NewReadBuilder(fastqPath string, rawRead *fastq.Read, runID string, startTime time.Time) *ReadBuilder {
	return &ReadBuilder{fastqPath: fastqPath, rawRead: rawRead, runID: runID, startTime: startTime}
}

// SetReadIndex sets the read's minKNOW-assigned read index.
func (b *ReadBuilder) SetReadIndex(idx int) *ReadBuilder {
	b.readIndex = &idx
	return b
}

// SetChannel sets the read's pore channel.
func (b *ReadBuilder) SetChannel(ch uint16) *ReadBuilder {
	b.channel = &ch
	return b
}

// SetBarcode sets the read's demultiplexed barcode name.
func (b *ReadBuilder) SetBarcode(barcode string) *ReadBuilder {
	b.barcode = &barcode
	return b
}

// Build produces the finished, immutable Read.
func (b *ReadBuilder) Build() (*Read, error) {
	id := readID(b.rawRead)
	if len(id) > 64 {
		return nil, ErrUnsupported1D2
	}
	seq := []byte(b.rawRead.Seq)
	if biosimd.IsNonACGTPresent(seq) {
		log.Error.Printf("cleaning non-ACGT bases in read %s (%s) before alignment", id, b.fastqPath)
		biosimd.CleanASCIISeqInplace(seq)
	}
	return &Read{
		ReadID:     id,
		RunID:      b.runID,
		FastqPath:  b.fastqPath,
		StartTime:  b.startTime,
		Channel:    b.channel,
		Barcode:    b.barcode,
		ReadIndex:  b.readIndex,
		QualityAvg: MeanQScore(b.rawRead.Qual),
		Sequence:   string(seq),
		Length:     len(seq),
	}, nil
}

// readID extracts the read id (the token after "@", before the first
// space) from a FASTQ ID line.
func readID(r *fastq.Read) string {
	id := strings.TrimPrefix(r.ID, "@")
	if sp := strings.IndexByte(id, ' '); sp >= 0 {
		return id[:sp]
	}
	return id
}

func description(r *fastq.Read) string {
	id := strings.TrimPrefix(r.ID, "@")
	if sp := strings.IndexByte(id, ' '); sp >= 0 {
		return id[sp+1:]
	}
	return ""
}

// ReadDirector turns one raw FASTQ record into a fully-populated Read,
// parsing the minKNOW header conventions: "runid=", "read=", "start_time=",
// one of "ch="/"channel=", and an optional "barcode=".
type ReadDirector struct {
	rawRead   *fastq.Read
	fastqPath string
}

// NewReadDirector constructs a director for one raw FASTQ record.
func NewReadDirector(rawRead *fastq.Read, fastqPath string) *ReadDirector {
	return &ReadDirector{rawRead: rawRead, fastqPath: fastqPath}
}

// ConstructRead parses the record's header and builds the Read. It
// returns a local-skip error (per the error-handling design) when
// required fields are missing or malformed, rather than panicking.
func (d *ReadDirector) ConstructRead() (*Read, error) {
	desc := parseDescription(description(d.rawRead))

	runID, ok := desc["run_id"]
	if !ok {
		return nil, errors.E("missing runid in FASTQ header", d.fastqPath)
	}
	startTimeStr, ok := desc["start_time"]
	if !ok {
		return nil, errors.E("missing start_time in FASTQ header", d.fastqPath)
	}
	startTime, err := time.Parse(time.RFC3339Nano, startTimeStr)
	if err != nil {
		if startTime, err = time.Parse(time.RFC3339, startTimeStr); err != nil {
			return nil, errors.E(err, "invalid start_time in FASTQ header", d.fastqPath)
		}
	}

	builder := NewReadBuilder(d.fastqPath, d.rawRead, runID, startTime)

	if readStr, ok := desc["read"]; ok {
		idx, err := strconv.Atoi(readStr)
		if err != nil {
			return nil, errors.E(err, "non-numeric read index in FASTQ header", d.fastqPath)
		}
		builder.SetReadIndex(idx)
	}

	channelKey := ""
	if _, ok := desc["ch"]; ok {
		channelKey = "ch"
	} else if _, ok := desc["channel"]; ok {
		channelKey = "channel"
	}
	if channelKey != "" {
		ch, err := strconv.ParseUint(desc[channelKey], 10, 16)
		if err != nil {
			return nil, errors.E(err, "invalid channel in FASTQ header", d.fastqPath)
		}
		builder.SetChannel(uint16(ch))
	}

	if barcode, ok := desc["barcode"]; ok {
		builder.SetBarcode(barcode)
	}

	return builder.Build()
}

// RunIDFromFirstHeader takes the header line of a FASTQ file's first
// record and extracts its "runid=" field, matching minKNOW's convention
// that every record in a run-generated FASTQ carries the same run id.
func RunIDFromFirstHeader(firstID string) (string, error) {
	desc := parseDescription(description(&fastq.Read{ID: firstID}))
	runID, ok := desc["run_id"]
	if !ok {
		return "", errors.E(fmt.Sprintf("%q is not a FASTQ header created by minKNOW", firstID))
	}
	return runID, nil
}
