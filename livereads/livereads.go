// Package livereads defines the regulator's one dependency on raw-signal
// transport: a client that streams the newest chunk per active channel
// and accepts eject/stop-receiving decisions back.
package livereads

// Calibration holds one channel's ADC-to-pA conversion constants.
type Calibration struct {
	Offset  float64
	Scaling float64
}

// ReadData is one channel's freshest accumulated raw-signal chunk.
type ReadData struct {
	ID         string
	RawData    []byte
	StartSample uint64
}

// ChannelRead pairs a channel number with its chunk.
type ChannelRead struct {
	Channel int
	Read    ReadData
}

// Client is the live-reads transport contract the regulator consumes. It
// is satisfied by a real MinKNOW connection or, for local development and
// tests, by Simulated.
type Client interface {
	// IsRunning reports whether the acquisition is still active. The
	// regulator's hot loop runs until this flips false.
	IsRunning() bool

	// ChannelCount returns the number of channels being sampled.
	ChannelCount() int

	// SignalDtype names the raw-signal sample encoding (e.g. "int16").
	SignalDtype() string

	// CalibrationValues returns each channel's ADC calibration.
	CalibrationValues() map[int]Calibration

	// GetReadChunks returns up to maxCount channel reads. When last is
	// true, only the newest chunk per channel is returned.
	GetReadChunks(maxCount int, last bool) []ChannelRead

	// UnblockReadBatch ejects every read in batch from its pore.
	UnblockReadBatch(batch []ReadData)

	// StopReceivingBatch requests no further chunks for every read in
	// batch, without ejecting it.
	StopReceivingBatch(batch []ReadData)

	// Run starts streaming.
	Run()

	// Reset stops streaming; IsRunning flips false once applied.
	Reset()
}
