// Package protocol defines the binary wire messages exchanged between a
// browser peer and the relay server over a single WebSocket connection.
//
// Framing mirrors the tagged-union enums in the original Rust signaling
// protocol (ClientMessage / ClientSenderMessage / ClientReceiverMessage /
// ServerSenderMessage / ServerReceiverMessage), rendered as Go structs and
// carried as msgpack-encoded envelopes instead of JSON text, per the
// compact-binary-encoding requirement.
package protocol

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Role identifies which side of a pairing a client is declaring itself to
// be in the very first frame it sends after the WebSocket upgrade.
type Role string

const (
	// RoleProducer is claimed by the peer that will push media and data
	// toward the server (camera/mic + data channel). It binds to the
	// ProducerController and claims a RelayChannel's writer endpoint.
	RoleProducer Role = "producer"

	// RoleConsumer is claimed by the peer that will receive media and
	// data from the server and render it. It binds to the
	// ConsumerController and claims a RelayChannel's reader endpoint.
	RoleConsumer Role = "consumer"
)

// SessionDescription carries an SDP offer or answer body verbatim.
type SessionDescription struct {
	SDP string
}

// IceCandidate carries one trickled ICE candidate. The SDP mid, mline
// index, and username fragment are optional exactly as in the browser's
// RTCIceCandidateInit, so pointers distinguish "absent" from "empty".
type IceCandidate struct {
	Candidate        string
	SdpMid           *string
	SdpMLineIndex    *uint16
	UsernameFragment *string
}

// Hello is the first frame a client must send; it declares the role the
// client is claiming for the lifetime of this connection. Any other
// message type received first is a protocol violation.
type Hello struct {
	Role Role
}

// Message kinds, used as the envelope's discriminant. Every non-hello
// message that crosses the wire in either direction is one of these.
const (
	KindHello                = "hello"
	KindOffer                = "offer"
	KindAnswer               = "answer"
	KindIceCandidate         = "ice_candidate"
	KindAllIceCandidatesSent = "all_ice_candidates_sent"
)

// Envelope is the tagged union actually placed on the wire: a string
// discriminant plus a payload shaped by that discriminant. This is the
// idiomatic Go rendering of the original's per-direction serde enums —
// Go has no enum-with-payload construct, so one envelope type carries
// every message kind in both directions and unused payload fields are
// left zero.
type Envelope struct {
	Kind        string
	Role        Role                `codec:",omitempty"`
	SessionDesc *SessionDescription `codec:",omitempty"`
	Candidate   *IceCandidate       `codec:",omitempty"`
}

var mh = &codec.MsgpackHandle{}

// Encode serializes an Envelope to a msgpack binary frame.
func Encode(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, mh)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", e.Kind, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a msgpack binary frame into an Envelope.
func Decode(frame []byte) (*Envelope, error) {
	var e Envelope
	dec := codec.NewDecoder(bytes.NewReader(frame), mh)
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	return &e, nil
}

// HelloEnvelope builds the first frame a client sends to claim a role.
func HelloEnvelope(role Role) *Envelope {
	return &Envelope{Kind: KindHello, Role: role}
}

// OfferEnvelope builds an offer message.
func OfferEnvelope(sdp string) *Envelope {
	return &Envelope{Kind: KindOffer, SessionDesc: &SessionDescription{SDP: sdp}}
}

// AnswerEnvelope builds an answer message.
func AnswerEnvelope(sdp string) *Envelope {
	return &Envelope{Kind: KindAnswer, SessionDesc: &SessionDescription{SDP: sdp}}
}

// CandidateEnvelope builds a trickled ICE candidate message.
func CandidateEnvelope(c IceCandidate) *Envelope {
	return &Envelope{Kind: KindIceCandidate, Candidate: &c}
}

// AllCandidatesSentEnvelope builds the end-of-trickle marker.
func AllCandidatesSentEnvelope() *Envelope {
	return &Envelope{Kind: KindAllIceCandidatesSent}
}
