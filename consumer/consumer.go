// Package consumer implements ConsumerController, the offerer side of a
// pairing: it creates its own data channel and media track, sends the
// initial SDP offer immediately, and relays every frame it reads off
// the paired relay.RelayChannel's reader endpoint into the browser.
//
// Grounded on webrtc_sender.rs in the original implementation: create a
// data channel named "data" and a TrackLocalStaticRTP with MIME type
// VP8, track id "video", stream id "webrtc-rs"; send the offer right
// away (trickle ICE); drain the channel's backlog in a dedicated
// goroutine equivalent to the original's spawned `thread()`, writing
// ChannelMessage::Data to the data channel when open and unmarshaling
// ChannelMessage::Media before writing it to the local track.
package consumer

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

const (
	trackMimeType = webrtc.MimeTypeVP8
	trackID       = "video"
	trackStreamID = "webrtc-rs"
	dataChanLabel = "data"
)

// State is the ConsumerController's signaling state machine:
// Fresh → LocalOffered → RemoteAnswered → Connected, with Closed
// reachable from any state.
type State int

const (
	StateFresh State = iota
	StateLocalOffered
	StateRemoteAnswered
	StateConnected
	StateClosed
)

// Sender is the minimal surface ConsumerController needs from its
// WebSocket session.
type Sender interface {
	Send(*protocol.Envelope)
}

// Controller is the ConsumerController: the offerer half of a pairing.
type Controller struct {
	mu    sync.Mutex
	state State

	pc      *webrtc.PeerConnection
	channel *relay.RelayChannel
	sender  Sender

	dataChan *webrtc.DataChannel
	track    *webrtc.TrackLocalStaticRTP

	remoteSet  bool
	candBuffer []webrtc.ICECandidateInit

	log string
}

// New creates a ConsumerController bound to the given RelayChannel
// reader endpoint, builds its data channel and media track, and sends
// the initial offer over sender.
func New(api *webrtc.API, channel *relay.RelayChannel, sender Sender, logPrefix string) (*Controller, error) {
	pc, err := rtcapi.NewPeerConnection(api)
	if err != nil {
		return nil, fmt.Errorf("consumer: new peer connection: %w", err)
	}

	dataChan, err := pc.CreateDataChannel(dataChanLabel, nil)
	if err != nil {
		return nil, fmt.Errorf("consumer: create data channel: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: trackMimeType},
		trackID,
		trackStreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("consumer: new local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("consumer: add track: %w", err)
	}

	c := &Controller{
		pc:       pc,
		channel:  channel,
		sender:   sender,
		dataChan: dataChan,
		track:    track,
		log:      logPrefix,
	}

	pc.OnICECandidate(c.onLocalICECandidate)
	pc.OnConnectionStateChange(c.onConnectionStateChange)

	go c.relayPump()

	if err := c.sendOffer(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Controller) sendOffer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.fail()
		return fmt.Errorf("consumer: create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		c.fail()
		return fmt.Errorf("consumer: set local description: %w", err)
	}

	c.mu.Lock()
	c.state = StateLocalOffered
	c.mu.Unlock()

	c.sender.Send(protocol.OfferEnvelope(offer.SDP))
	return nil
}

// HandleAnswer processes the browser's SDP answer.
func (c *Controller) HandleAnswer(sdp string) error {
	c.mu.Lock()
	if c.state != StateLocalOffered {
		c.mu.Unlock()
		return fmt.Errorf("consumer: answer received in state %v, expected LocalOffered", c.state)
	}
	c.mu.Unlock()

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		c.fail()
		return fmt.Errorf("consumer: set remote description: %w", err)
	}

	c.mu.Lock()
	c.state = StateRemoteAnswered
	c.mu.Unlock()

	c.drainCandidateBuffer()
	return nil
}

// HandleRemoteCandidate processes a trickled candidate from the
// browser, buffering it until the remote description has been set.
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
		return fmt.Errorf("consumer: add ice candidate: %w", err)
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

func (c *Controller) onConnectionStateChange(state webrtc.PeerConnectionState) {
	log.Printf("[INFO] %s: peer connection state changed to %s", c.log, state)
	if state == webrtc.PeerConnectionStateConnected {
		c.mu.Lock()
		c.state = StateConnected
		c.mu.Unlock()
	}
}

// relayPump drains the paired RelayChannel's reader endpoint for the
// lifetime of the controller, forwarding data frames into the data
// channel (when open) and media frames into the local track after
// unmarshaling the RTP packet. It returns when the RelayChannel closes,
// which is this controller's end-of-stream signal.
func (c *Controller) relayPump() {
	for frame := range c.channel.Recv() {
		switch frame.Kind {
		case relay.FrameData:
			if err := c.forwardData(frame.Data); err != nil {
				log.Printf("[ERROR] %s: data channel send: %v", c.log, err)
			}
		case relay.FrameMedia:
			if err := c.forwardMedia(frame.Data); err != nil {
				log.Printf("[ERROR] %s: forward media: %v", c.log, err)
			}
		}
	}
}

// forwardData sends one data-channel frame verbatim into the browser's
// data channel. It is a no-op, not an error, while the data channel has
// not yet reached the Open state.
func (c *Controller) forwardData(data []byte) error {
	if c.dataChan.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}
	return c.dataChan.Send(data)
}

// forwardMedia unmarshals one RTP packet and writes it to the local
// track exposed to the browser.
func (c *Controller) forwardMedia(raw []byte) error {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(raw); err != nil {
		return fmt.Errorf("unmarshal rtp packet: %w", err)
	}
	return c.track.WriteRTP(pkt)
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
