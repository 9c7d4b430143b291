// Package producer implements ProducerController, the answerer side of
// a pairing: it receives the browser's offer, attaches to the incoming
// media track and data channel, and forwards everything it reads onto
// the writer endpoint of a relay.RelayChannel.
//
// Grounded on webrtc_receiver.rs, webrtc_data_receiver.rs, and
// webrtc_media_receiver.rs in the original implementation: set remote
// description, create answer, forward the answer immediately (trickle
// ICE rather than the original's gather-then-answer, per the resolved
// Open Question), then relay every OnTrack RTP packet and every
// data-channel message onto the paired RelayChannel.
package producer

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/n0remac/webrtc-relay/protocol"
	"github.com/n0remac/webrtc-relay/relay"
	"github.com/n0remac/webrtc-relay/rtcapi"
)

// State is the ProducerController's signaling state machine:
// Fresh → RemoteOffered → LocalAnswered → Connected, with Closed
// reachable from any state.
type State int

const (
	StateFresh State = iota
	StateRemoteOffered
	StateLocalAnswered
	StateConnected
	StateClosed
)

// Sender is the minimal surface ProducerController needs from its
// WebSocket session, so tests can substitute a fake without spinning up
// a real connection.
type Sender interface {
	Send(*protocol.Envelope)
}

// Controller is the ProducerController: the answerer half of a pairing.
type Controller struct {
	mu    sync.Mutex
	state State

	pc      *webrtc.PeerConnection
	channel *relay.RelayChannel
	sender  Sender

	remoteSet  bool
	candBuffer []webrtc.ICECandidateInit

	log string // correlation prefix for log lines, e.g. "producer[<id>]"
}

// New creates a ProducerController bound to the given RelayChannel
// writer endpoint and wired to forward outbound signaling through
// sender. It attaches the PeerConnection handlers but does not yet
// negotiate anything — negotiation starts when the caller feeds it the
// browser's offer via HandleOffer.
func New(api *webrtc.API, channel *relay.RelayChannel, sender Sender, logPrefix string) (*Controller, error) {
	pc, err := rtcapi.NewPeerConnection(api)
	if err != nil {
		return nil, fmt.Errorf("producer: new peer connection: %w", err)
	}

	c := &Controller{
		pc:      pc,
		channel: channel,
		sender:  sender,
		log:     logPrefix,
	}

	pc.OnICECandidate(c.onLocalICECandidate)
	pc.OnTrack(c.onTrack)
	pc.OnDataChannel(c.onDataChannel)
	pc.OnConnectionStateChange(c.onConnectionStateChange)

	return c, nil
}

// HandleOffer processes the browser's initial SDP offer: sets it as the
// remote description, creates and sets the local answer, and sends the
// answer back immediately over the WebSocket — trickle ICE, no waiting
// for gathering to complete.
func (c *Controller) HandleOffer(sdp string) error {
	c.mu.Lock()
	if c.state != StateFresh {
		c.mu.Unlock()
		return fmt.Errorf("producer: offer received in state %v, expected Fresh", c.state)
	}
	c.state = StateRemoteOffered
	c.mu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		c.fail()
		return fmt.Errorf("producer: set remote description: %w", err)
	}

	c.drainCandidateBuffer()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		c.fail()
		return fmt.Errorf("producer: create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		c.fail()
		return fmt.Errorf("producer: set local description: %w", err)
	}

	c.mu.Lock()
	c.state = StateLocalAnswered
	c.mu.Unlock()

	c.sender.Send(protocol.AnswerEnvelope(answer.SDP))
	return nil
}

// HandleRemoteCandidate processes a trickled candidate from the
// browser. If the remote description has not yet been set, the
// candidate is buffered and replayed in order as soon as HandleOffer
// completes SetRemoteDescription.
func (c *Controller) HandleRemoteCandidate(ice protocol.IceCandidate) error {
	init := toICECandidateInit(ice)

	c.mu.Lock()
	if !c.remoteSet {
		c.candBuffer = append(c.candBuffer, init)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("producer: add ice candidate: %w", err)
	}
	return nil
}

func (c *Controller) drainCandidateBuffer() {
	c.mu.Lock()
	c.remoteSet = true
	buffered := c.candBuffer
	c.candBuffer = nil
	c.mu.Unlock()

	for _, init := range buffered {
		if err := c.pc.AddICECandidate(init); err != nil {
			log.Printf("[ERROR] %s: replay buffered candidate: %v", c.log, err)
		}
	}
}

func (c *Controller) onLocalICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		c.sender.Send(protocol.AllCandidatesSentEnvelope())
		return
	}
	init := candidate.ToJSON()
	c.sender.Send(protocol.CandidateEnvelope(protocol.IceCandidate{
		Candidate:        init.Candidate,
		SdpMid:           init.SDPMid,
		SdpMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}))
}

func (c *Controller) onDataChannel(dc *webrtc.DataChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.handleDataChannelMessage(msg.Data)
	})
}

// handleDataChannelMessage forwards one data-channel message onto the
// writer endpoint of the bound RelayChannel, verbatim, with no
// stripping of embedded NUL bytes.
func (c *Controller) handleDataChannelMessage(data []byte) {
	c.channel.Write(relay.RelayFrame{Kind: relay.FrameData, Data: data})
}

func (c *Controller) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		c.handleIncomingRTP(buf[:n])
	}
}

// handleIncomingRTP re-marshals one RTP packet read off the incoming
// track and forwards it onto the bound RelayChannel. Re-marshaling
// (rather than forwarding the raw bytes as read) decouples the frame on
// the wire from whatever internal representation the track read
// produced.
func (c *Controller) handleIncomingRTP(raw []byte) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		log.Printf("[ERROR] %s: unmarshal rtp packet: %v", c.log, err)
		return
	}
	out, err := pkt.Marshal()
	if err != nil {
		log.Printf("[ERROR] %s: marshal rtp packet: %v", c.log, err)
		return
	}
	c.channel.Write(relay.RelayFrame{Kind: relay.FrameMedia, Data: out})
}

func (c *Controller) onConnectionStateChange(state webrtc.PeerConnectionState) {
	log.Printf("[INFO] %s: peer connection state changed to %s", c.log, state)
	if state == webrtc.PeerConnectionStateConnected {
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()
	}
}

// State reports the controller's current signaling state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) fail() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
}

// Close tears down the underlying PeerConnection and the relay channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.channel.Close()
	return c.pc.Close()
}

func toICECandidateInit(ice protocol.IceCandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        ice.Candidate,
		SDPMid:           ice.SdpMid,
		SDPMLineIndex:    ice.SdpMLineIndex,
		UsernameFragment: ice.UsernameFragment,
	}
}
