package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	ufrag := "abcd"

	cases := []*Envelope{
		HelloEnvelope(RoleProducer),
		HelloEnvelope(RoleConsumer),
		OfferEnvelope("v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"),
		AnswerEnvelope("v=0\r\no=- 2 1 IN IP4 0.0.0.0\r\n"),
		CandidateEnvelope(IceCandidate{
			Candidate:        "candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host",
			SdpMid:           &mid,
			SdpMLineIndex:    &idx,
			UsernameFragment: &ufrag,
		}),
		AllCandidatesSentEnvelope(),
	}

	for _, want := range cases {
		frame, err := Encode(want)
		require.NoError(t, err)
		require.NotEmpty(t, frame)

		got, err := Decode(frame)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}

func TestCandidateOptionalFieldsOmittable(t *testing.T) {
	env := CandidateEnvelope(IceCandidate{Candidate: "candidate:1 1 udp 1 0.0.0.0 0 typ host"})
	frame, err := Encode(env)
	require.NoError(t, err)

	got, err := Decode(frame)
	require.NoError(t, err)
	require.Nil(t, got.Candidate.SdpMid)
	require.Nil(t, got.Candidate.SdpMLineIndex)
	require.Nil(t, got.Candidate.UsernameFragment)
}
