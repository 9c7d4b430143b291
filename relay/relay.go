// Package relay implements the unbounded, lossless frame pipe that sits
// between a ProducerController and a ConsumerController once the
// rendezvous registry has paired them.
//
// Grounded on channel.rs / channel_sender.rs / channel_receiver.rs in the
// original Rust implementation: an unbounded mpsc channel shared by a
// writer half and a reader half, plus an AtomicBool recording whether a
// reader has ever attached.
package relay

import (
	"sync"
	"sync/atomic"
)

// FrameKind discriminates the two payload shapes a RelayFrame carries.
type FrameKind int

const (
	// FrameData carries raw data-channel bytes, forwarded byte-for-byte
	// with no interpretation, no stripping of embedded NUL bytes.
	FrameData FrameKind = iota
	// FrameMedia carries one marshaled RTP packet.
	FrameMedia
)

// RelayFrame is one tagged unit of forwarded traffic.
type RelayFrame struct {
	Kind FrameKind
	Data []byte
}

// queueCapacity is the buffer size of the internal delivery channel used
// once a reader is attached; the pump goroutine never blocks writers
// beyond this, since unread frames pile up in the unbounded backlog slice
// instead.
const queueCapacity = 256

// RelayChannel is an unbounded, order-preserving FIFO of RelayFrame
// between exactly one writer endpoint and exactly one reader endpoint.
//
// Admission gate: frames written before any reader has ever attached are
// silently dropped, matching the original's has_receiver gate semantics.
// Once a reader has attached, every subsequent frame is delivered in
// order; a later reader disconnect does not revert the gate or cause
// frames to be dropped again — the channel is simply never read further.
type RelayChannel struct {
	id ChannelID

	hasReader atomic.Bool

	in   chan RelayFrame
	out  chan RelayFrame
	done chan struct{}

	closeOnce sync.Once
}

// ChannelID identifies one rendezvous pairing for logging/diagnostics.
// Producer-side and consumer-side ids are assigned from independent
// monotonic counters, matching the registry's per-role ChannelId spaces.
type ChannelID uint64

// NewRelayChannel allocates a channel and starts its backlog pump. The
// pump is the one piece of machinery that lets writes never block even
// though Go's native channels are fixed-capacity: it drains `in` into an
// internal slice and feeds `out` as the reader keeps up.
func NewRelayChannel(id ChannelID) *RelayChannel {
	rc := &RelayChannel{
		id:   id,
		in:   make(chan RelayFrame, queueCapacity),
		out:  make(chan RelayFrame, queueCapacity),
		done: make(chan struct{}),
	}
	go rc.pump()
	return rc
}

// ID returns the channel's rendezvous identifier.
func (rc *RelayChannel) ID() ChannelID { return rc.id }

// pump moves frames from `in` to `out` through an unbounded backlog,
// so that Write never blocks on a slow or absent reader.
func (rc *RelayChannel) pump() {
	var backlog []RelayFrame
	for {
		if len(backlog) == 0 {
			select {
			case f, ok := <-rc.in:
				if !ok {
					close(rc.out)
					return
				}
				backlog = append(backlog, f)
			case <-rc.done:
				close(rc.out)
				return
			}
			continue
		}

		select {
		case f, ok := <-rc.in:
			if !ok {
				continue
			}
			backlog = append(backlog, f)
		case rc.out <- backlog[0]:
			backlog = backlog[1:]
		case <-rc.done:
			close(rc.out)
			return
		}
	}
}

// AttachReader flips the admission gate open. Calling it more than once
// is a no-op; the gate never closes again afterward.
func (rc *RelayChannel) AttachReader() {
	rc.hasReader.Store(true)
}

// HasReader reports whether the admission gate has ever been opened.
func (rc *RelayChannel) HasReader() bool {
	return rc.hasReader.Load()
}

// Write enqueues a frame from the writer endpoint. It silently drops the
// frame if the admission gate has not yet opened — no reader has ever
// attached to this channel — matching the documented caveat that a gate
// once opened never re-closes, even if the reader later disconnects.
func (rc *RelayChannel) Write(f RelayFrame) {
	if !rc.HasReader() {
		return
	}
	select {
	case rc.in <- f:
	case <-rc.done:
	}
}

// Read blocks until a frame is available or the channel is closed, in
// which case it returns ok == false.
func (rc *RelayChannel) Read() (RelayFrame, bool) {
	f, ok := <-rc.out
	return f, ok
}

// Recv exposes the underlying delivery channel for use in a select
// statement alongside other events (e.g. a done/closed signal).
func (rc *RelayChannel) Recv() <-chan RelayFrame {
	return rc.out
}

// Close tears down the channel. Safe to call more than once, including
// concurrently from both the writer's and the reader's controller —
// both ends of a pairing close the same shared RelayChannel during
// teardown.
func (rc *RelayChannel) Close() {
	rc.closeOnce.Do(func() {
		close(rc.done)
	})
}
