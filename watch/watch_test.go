package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanolab/minster/nanopore"
)

type collectingReader struct {
	reads []*nanopore.Read
}

func (c *collectingReader) AddRead(read *nanopore.Read) {
	c.reads = append(c.reads, read)
}

func TestParseFastqFileSkipsFailReads(t *testing.T) {
	dir := t.TempDir()
	passDir := filepath.Join(dir, "fastq_pass")
	require.NoError(t, os.MkdirAll(passDir, 0o755))
	path := filepath.Join(passDir, "run_0.fastq")

	content := "@read-1 runid=abc123 read=1 ch=42 start_time=2024-01-01T00:00:00Z\n" +
		"ACGTACGT\n+\nIIIIIIII\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reader := &collectingReader{}
	require.NoError(t, ParseFastqFile(path, reader))

	require.Len(t, reader.reads, 1)
	assert.Equal(t, "read-1", reader.reads[0].ReadID)
	assert.True(t, reader.reads[0].IsPass())

	failDir := filepath.Join(dir, "fastq_fail")
	require.NoError(t, os.MkdirAll(failDir, 0o755))
	failPath := filepath.Join(failDir, "run_0.fastq")
	require.NoError(t, os.WriteFile(failPath, []byte(content), 0o644))
	require.NoError(t, ParseFastqFile(failPath, reader))
	require.Len(t, reader.reads, 1)
}

func TestWatcherDetectsNewFastqFile(t *testing.T) {
	dir := t.TempDir()
	passDir := filepath.Join(dir, "fastq_pass")
	require.NoError(t, os.MkdirAll(passDir, 0o755))

	reader := &collectingReader{}
	watcher, err := New(reader)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(dir))
	defer watcher.Stop()

	content := "@read-1 runid=abc123 read=1 ch=42 start_time=2024-01-01T00:00:00Z\n" +
		"ACGTACGT\n+\nIIIIIIII\n"
	require.NoError(t, os.WriteFile(filepath.Join(passDir, "run_0.fastq"), []byte(content), 0o644))

	require.Eventually(t, func() bool {
		return len(reader.reads) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIsFastqPath(t *testing.T) {
	assert.True(t, isFastqPath("a.fastq"))
	assert.True(t, isFastqPath("a.fastq.gz"))
	assert.True(t, isFastqPath("a.fq"))
	assert.True(t, isFastqPath("a.fq.gz"))
	assert.False(t, isFastqPath("a.txt"))
}
