// Package metrics implements the single-writer persistence layer for
// read classification and basecall events: a command bus that many
// producer goroutines push onto, and a dedicated consumer that drains it
// into a local SQLite-equivalent store. A nil command is the shutdown
// sentinel: it tells the consumer to close the store and return.
package metrics

import (
	"time"

	"github.com/grailbio/base/log"
)

// Command is one persistence operation to apply against a Store.
// Implementations carry their own ISO-8601 UTC timestamp, set at
// construction time rather than when the consumer eventually executes
// them, so the recorded time reflects when the event actually happened.
type Command interface {
	Execute(store *Store) error
}

func isoNow(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

// RecordBasecalledReadCommand persists a fully basecalled read's final
// classification. StrataID is empty when the read's fragments were never
// classified into any stratum.
type RecordBasecalledReadCommand struct {
	ReadID    string
	StrataID  string
	Length    int
	Timestamp string
}

// NewRecordBasecalledReadCommand stamps the command with the current time.
func NewRecordBasecalledReadCommand(readID, strataID string, length int, now time.Time) RecordBasecalledReadCommand {
	return RecordBasecalledReadCommand{ReadID: readID, StrataID: strataID, Length: length, Timestamp: isoNow(now)}
}

// Execute implements Command.
func (c RecordBasecalledReadCommand) Execute(store *Store) error {
	return store.RecordBasecalledRead(c.ReadID, c.StrataID, c.Length, c.Timestamp)
}

// RecordClassifiedReadCommand persists a single chunk's real-time
// classification result, independent of the read's eventual fate.
type RecordClassifiedReadCommand struct {
	ReadID    string
	StrataID  string
	Timestamp string
}

// NewRecordClassifiedReadCommand stamps the command with the current time.
func NewRecordClassifiedReadCommand(readID, strataID string, now time.Time) RecordClassifiedReadCommand {
	return RecordClassifiedReadCommand{ReadID: readID, StrataID: strataID, Timestamp: isoNow(now)}
}

// Execute implements Command.
func (c RecordClassifiedReadCommand) Execute(store *Store) error {
	return store.RecordClassifiedRead(c.ReadID, c.StrataID, c.Timestamp)
}

// PrintMessageCommand logs a free-text operational message through the
// same ordered queue as the persisted commands, so log lines interleave
// correctly with the events they describe.
type PrintMessageCommand struct {
	Message string
}

// Execute implements Command.
func (c PrintMessageCommand) Execute(store *Store) error {
	log.Printf("%s", c.Message)
	return nil
}
