// Package wsconn wraps one upgraded WebSocket connection with the
// single-writer discipline the relay server depends on: every outbound
// frame for a session — SDP answers, trickled candidates, the
// end-of-trickle marker — is serialized through one goroutine reading
// from a buffered channel, so an SDP answer can never be interleaved
// with, or overtaken by, a candidate queued moments later.
//
// Grounded on sfuPeer/writePumpSFU/readPumpSFU in the teacher's
// webrtc/sfu.go (single send channel + dedicated writer goroutine) and
// the logInfo/logError helper pair in websocket/websocket.go.
package wsconn

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/n0remac/webrtc-relay/protocol"
)

const sendBufferSize = 64

// Session owns one WebSocket connection for its lifetime and exposes a
// channel-based Send; it never lets a caller touch the underlying
// *websocket.Conn's write side directly.
type Session struct {
	ID   uuid.UUID
	conn *websocket.Conn
	send chan *protocol.Envelope
	done chan struct{}

	closeOnce sync.Once
}

// New wraps an accepted connection and starts its write pump. The
// caller is responsible for running Recv in a loop on its own goroutine
// (or the calling goroutine) until it returns an error.
func New(conn *websocket.Conn) *Session {
	s := &Session{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan *protocol.Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
	logInfo("session connected", map[string]interface{}{"session": s.ID})
	go s.writePump()
	return s
}

// Send enqueues a frame for the write goroutine. It never writes to the
// network itself, but it waits while the send buffer is full until the
// write goroutine frees a slot; if the session is already closed, the
// frame is dropped.
func (s *Session) Send(e *protocol.Envelope) {
	select {
	case s.send <- e:
	case <-s.done:
	}
}

// Recv reads and decodes exactly one frame. Callers loop on this until
// it returns an error, then tear the session down.
func (s *Session) Recv() (*protocol.Envelope, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(raw)
}

// Close stops the write pump and closes the underlying connection. Safe
// to call more than once, including concurrently.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) writePump() {
	defer func() {
		logInfo("session closed", map[string]interface{}{"session": s.ID})
		_ = s.conn.Close()
	}()

	for {
		select {
		case env := <-s.send:
			frame, err := protocol.Encode(env)
			if err != nil {
				logError("encode outbound frame", err, map[string]interface{}{"session": s.ID})
				continue
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logError("write message", err, map[string]interface{}{"session": s.ID})
				return
			}
		case <-s.done:
			return
		}
	}
}

func logInfo(msg string, meta map[string]interface{}) {
	log.Printf("[INFO] %s | %v", msg, meta)
}

func logError(msg string, err error, meta map[string]interface{}) {
	log.Printf("[ERROR] %s: %v | %v", msg, err, meta)
}
