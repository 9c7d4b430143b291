// Package rtcapi builds the shared pion/webrtc API instance and default
// ICE configuration used by both controllers.
//
// Grounded on webrtc_api.rs in the original implementation (register
// default codecs + default interceptors, single STUN server, no TURN)
// and on the teacher's newSFUAPI in webrtc/sfu.go for the idiomatic Go
// shape of that setup (MediaEngine + interceptor.Registry wired through
// webrtc.NewAPI).
package rtcapi

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// New builds the single shared pion API instance the relay server uses
// for every PeerConnection it creates, on both the producer and consumer
// side.
func New() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// DefaultConfiguration is the RTCConfiguration every PeerConnection is
// created with: a single public STUN server and nothing else. No TURN
// server is configured — relaying through TURN is out of scope.
func DefaultConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// NewPeerConnection creates one PeerConnection from the shared API using
// the default configuration.
func NewPeerConnection(api *webrtc.API) (*webrtc.PeerConnection, error) {
	return api.NewPeerConnection(DefaultConfiguration())
}
