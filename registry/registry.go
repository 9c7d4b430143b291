// Package registry implements the rendezvous pairing between producer
// and consumer sessions: whichever role arrives first waits, and the
// first arrival of the opposite role completes the pairing.
//
// Grounded on channels.rs in the original Rust implementation: two FIFO
// queues (one of relay channels awaiting a writer, one awaiting a
// reader) under a single lock, with independent monotonic id counters
// per role. Neither ClaimWriter nor ClaimReader ever blocks — pairing
// happens asynchronously through the RelayChannel itself, exactly as the
// original's sender()/receiver() never block on the mpsc channel they
// hand back.
package registry

import (
	"sync"

	"github.com/n0remac/webrtc-relay/relay"
)

// Registry pairs waiting writer and reader claims in FIFO order.
type Registry struct {
	mu sync.Mutex

	awaitingReader []*relay.RelayChannel // created by ClaimWriter, waiting for a ClaimReader to show up
	awaitingWriter []*relay.RelayChannel // created by ClaimReader, waiting for a ClaimWriter to show up

	nextWriterID uint64
	nextReaderID uint64

	channelsCreated  uint64
	producersWaiting int
	consumersWaiting int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// ClaimWriter returns the RelayChannel for the next pairing, from the
// writer side. If a channel is already waiting for a writer (created by
// an earlier ClaimReader call), that one is handed out; otherwise a
// fresh RelayChannel is created and queued for the next ClaimReader.
func (r *Registry) ClaimWriter() *relay.RelayChannel {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextWriterID++

	if len(r.awaitingWriter) > 0 {
		rc := r.awaitingWriter[0]
		r.awaitingWriter = r.awaitingWriter[1:]
		r.consumersWaiting--
		return rc
	}

	r.channelsCreated++
	rc := relay.NewRelayChannel(relay.ChannelID(r.nextWriterID))
	r.awaitingReader = append(r.awaitingReader, rc)
	r.producersWaiting++
	return rc
}

// ClaimReader returns the RelayChannel for the next pairing, from the
// reader side, mirroring ClaimWriter.
func (r *Registry) ClaimReader() *relay.RelayChannel {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextReaderID++

	if len(r.awaitingReader) > 0 {
		rc := r.awaitingReader[0]
		r.awaitingReader = r.awaitingReader[1:]
		r.producersWaiting--
		rc.AttachReader()
		return rc
	}

	r.channelsCreated++
	rc := relay.NewRelayChannel(relay.ChannelID(r.nextReaderID))
	r.awaitingWriter = append(r.awaitingWriter, rc)
	r.consumersWaiting++
	rc.AttachReader()
	return rc
}

// Stats is a point-in-time diagnostic snapshot, used only for logging —
// never for pairing decisions.
type Stats struct {
	ChannelsCreated  uint64
	ProducersWaiting int
	ConsumersWaiting int
}

// Stats returns a snapshot of the registry's diagnostic counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ChannelsCreated:  r.channelsCreated,
		ProducersWaiting: r.producersWaiting,
		ConsumersWaiting: r.consumersWaiting,
	}
}
