package metrics

import "github.com/grailbio/base/log"

// Bus is the metrics command queue: many producer goroutines (the
// regulator, the strata balancer) push Commands; one consumer goroutine
// (Run) drains them into a Store in arrival order. Sending a nil Command
// is the shutdown sentinel.
type Bus struct {
	commands chan Command
}

// NewBus creates a Bus with the given channel buffer depth.
func NewBus(buffer int) *Bus {
	return &Bus{commands: make(chan Command, buffer)}
}

// Send blocks until the command is enqueued. Used by producers for whom
// losing an event would be a correctness bug (the strata balancer's
// basecalled-read records).
func (b *Bus) Send(cmd Command) {
	b.commands <- cmd
}

// TrySend enqueues cmd without blocking, returning false if the queue is
// full. The regulator's hot loop uses this: classification events are
// best-effort telemetry, and the cycle's throttle budget must never be
// spent waiting on the metrics consumer.
func (b *Bus) TrySend(cmd Command) bool {
	select {
	case b.commands <- cmd:
		return true
	default:
		log.Error.Printf("metrics queue full, dropping command")
		return false
	}
}

// Shutdown sends the nil sentinel, requesting that Run close store and
// return once every command already queued has been applied.
func (b *Bus) Shutdown() {
	b.commands <- nil
}

// Run drains commands from the bus and applies them to store in order,
// until the shutdown sentinel is received, at which point store is
// closed and Run returns. Run is the metrics consumer's entire body and
// should be invoked from its own goroutine.
func (b *Bus) Run(store *Store) error {
	for cmd := range b.commands {
		if cmd == nil {
			return store.Close()
		}
		if err := cmd.Execute(store); err != nil {
			log.Error.Printf("metrics command failed: %v", err)
		}
	}
	return store.Close()
}
