package consumer

import (
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/webrtc-relay/protocol"
	"github.com/n0remac/webrtc-relay/relay"
	"github.com/n0remac/webrtc-relay/rtcapi"
)

// fakeSender is the test double the Sender seam exists for: it records
// every envelope a controller tries to send without touching a real
// WebSocket connection.
type fakeSender struct {
	mu  sync.Mutex
	out []*protocol.Envelope
}

func (s *fakeSender) Send(e *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, e)
}

func (s *fakeSender) find(kind string) *protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.out {
		if e.Kind == kind {
			return e
		}
	}
	return nil
}

// realAnswerSDP negotiates a genuine SDP answer against the given offer
// using a throwaway PeerConnection, so HandleAnswer is exercised against
// SDP pion itself considers valid.
func realAnswerSDP(t *testing.T, offerSDP string) string {
	t.Helper()
	api, err := rtcapi.New()
	require.NoError(t, err)
	pc, err := rtcapi.NewPeerConnection(api)
	require.NoError(t, err)
	defer pc.Close()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	require.NoError(t, pc.SetRemoteDescription(offer))

	answer, err := pc.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(answer))
	return answer.SDP
}

func newTestController(t *testing.T) (*Controller, *fakeSender, *relay.RelayChannel) {
	t.Helper()
	api, err := rtcapi.New()
	require.NoError(t, err)

	channel := relay.NewRelayChannel(relay.ChannelID(1))
	channel.AttachReader()

	sender := &fakeSender{}
	ctrl, err := New(api, channel, sender, "test-consumer")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	return ctrl, sender, channel
}

func TestNewSendsOfferImmediately(t *testing.T) {
	ctrl, sender, _ := newTestController(t)
	require.Equal(t, StateLocalOffered, ctrl.State())

	offer := sender.find(protocol.KindOffer)
	require.NotNil(t, offer)
	require.NotEmpty(t, offer.SessionDesc.SDP)
}

func TestHandleAnswerAdvancesState(t *testing.T) {
	ctrl, sender, _ := newTestController(t)
	offer := sender.find(protocol.KindOffer)
	require.NotNil(t, offer)

	answerSDP := realAnswerSDP(t, offer.SessionDesc.SDP)
	require.NoError(t, ctrl.HandleAnswer(answerSDP))
	require.Equal(t, StateRemoteAnswered, ctrl.State())
}

func TestHandleAnswerRejectsWrongState(t *testing.T) {
	ctrl, sender, _ := newTestController(t)
	offer := sender.find(protocol.KindOffer)
	require.NotNil(t, offer)

	answerSDP := realAnswerSDP(t, offer.SessionDesc.SDP)
	require.NoError(t, ctrl.HandleAnswer(answerSDP))

	err := ctrl.HandleAnswer(answerSDP)
	require.Error(t, err)
}

// TestRemoteCandidateBeforeAnswerIsBufferedNotApplied is the scenario-2
// ICE-before-SDP ordering property on the consumer side: a candidate
// arriving before the answer must never reach pc.AddICECandidate while
// the remote description is unset.
func TestRemoteCandidateBeforeAnswerIsBufferedNotApplied(t *testing.T) {
	ctrl, sender, _ := newTestController(t)

	err := ctrl.HandleRemoteCandidate(protocol.IceCandidate{
		Candidate: "candidate:1 1 udp 2122260223 10.0.0.5 54400 typ host",
	})
	require.NoError(t, err)

	require.Len(t, ctrl.candBuffer, 1)
	require.False(t, ctrl.remoteSet)

	offer := sender.find(protocol.KindOffer)
	require.NotNil(t, offer)
	answerSDP := realAnswerSDP(t, offer.SessionDesc.SDP)
	require.NoError(t, ctrl.HandleAnswer(answerSDP))

	require.Empty(t, ctrl.candBuffer)
	require.True(t, ctrl.remoteSet)
}

func TestForwardDataNoOpWhenChannelNotOpen(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.forwardData([]byte("hello")))
}

func TestForwardMediaWritesToLocalTrack(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: 77,
			Timestamp:      1000,
			SSRC:           55,
		},
		Payload: []byte{9, 8, 7},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)

	// The local track has no reader attached yet in this test, so
	// WriteRTP must still succeed rather than block or error.
	require.NoError(t, ctrl.forwardMedia(raw))
}

func TestForwardMediaWrapsUnmarshalError(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	err := ctrl.forwardMedia([]byte{0xFF})
	require.Error(t, err)
}

func TestRelayPumpForwardsMediaFrames(t *testing.T) {
	ctrl, _, channel := newTestController(t)

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: 1, SSRC: 1},
		Payload: []byte{1},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)

	channel.Write(relay.RelayFrame{Kind: relay.FrameMedia, Data: raw})

	// relayPump runs in its own goroutine from New; give it a moment to
	// drain the frame into the local track via forwardMedia.
	time.Sleep(50 * time.Millisecond)
}

func TestCloseFromBothSidesIsSafe(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			require.NotPanics(t, func() { _ = ctrl.Close() })
		}()
	}
	wg.Wait()
}
