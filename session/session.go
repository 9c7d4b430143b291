// Package session implements the dispatcher: it reads exactly one Hello
// frame off a freshly accepted WebSocket connection, routes the
// connection to a ProducerController or ConsumerController based on the
// declared role, claims the matching endpoint of a rendezvous pairing,
// and then runs that controller's read loop for the lifetime of the
// connection.
//
// Grounded on socket.rs / socket_receiver.rs / socket_sender.rs in the
// original implementation: read one role-selecting message, then hand
// the rest of the connection's lifetime to a role-specific loop that
// feeds every subsequent message to the bound controller.
package session

import (
	"fmt"
	"log"

	"github.com/pion/webrtc/v4"

	"github.com/n0remac/webrtc-relay/consumer"
	"github.com/n0remac/webrtc-relay/producer"
	"github.com/n0remac/webrtc-relay/protocol"
	"github.com/n0remac/webrtc-relay/registry"
	"github.com/n0remac/webrtc-relay/wsconn"
)

// Run dispatches one accepted connection to completion: it blocks until
// the connection closes or a protocol violation ends the session.
// Panics raised on this goroutine are recovered and logged rather than
// allowed to crash the process.
func Run(sess *wsconn.Session, api *webrtc.API, reg *registry.Registry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] session %s: recovered from panic: %v", sess.ID, r)
		}
		sess.Close()
	}()

	env, err := sess.Recv()
	if err != nil {
		log.Printf("[INFO] session %s: closed before hello: %v", sess.ID, err)
		return
	}
	if env.Kind != protocol.KindHello {
		log.Printf("[ERROR] session %s: first frame was %q, expected hello", sess.ID, env.Kind)
		return
	}

	switch env.Role {
	case protocol.RoleProducer:
		runProducer(sess, api, reg)
	case protocol.RoleConsumer:
		runConsumer(sess, api, reg)
	default:
		log.Printf("[ERROR] session %s: hello declared unknown role %q", sess.ID, env.Role)
	}
}

func runProducer(sess *wsconn.Session, api *webrtc.API, reg *registry.Registry) {
	channel := reg.ClaimWriter()
	logPrefix := fmt.Sprintf("producer[%s/%d]", sess.ID, channel.ID())

	ctrl, err := producer.New(api, channel, sess, logPrefix)
	if err != nil {
		log.Printf("[ERROR] %s: create controller: %v", logPrefix, err)
		return
	}
	defer ctrl.Close()

	log.Printf("[INFO] %s: opened", logPrefix)
	for {
		env, err := sess.Recv()
		if err != nil {
			log.Printf("[INFO] %s: closed: %v", logPrefix, err)
			return
		}

		switch env.Kind {
		case protocol.KindOffer:
			if env.SessionDesc == nil {
				log.Printf("[ERROR] %s: offer frame carried no payload", logPrefix)
				return
			}
			if err := ctrl.HandleOffer(env.SessionDesc.SDP); err != nil {
				log.Printf("[ERROR] %s: handle offer: %v", logPrefix, err)
				return
			}
		case protocol.KindIceCandidate:
			if env.Candidate == nil {
				log.Printf("[ERROR] %s: ice_candidate frame carried no payload", logPrefix)
				return
			}
			if err := ctrl.HandleRemoteCandidate(*env.Candidate); err != nil {
				log.Printf("[ERROR] %s: handle candidate: %v", logPrefix, err)
			}
		case protocol.KindAllIceCandidatesSent:
			// No action required; trickle ICE has no end-of-batch step
			// on this side.
		default:
			log.Printf("[ERROR] %s: unexpected frame kind %q", logPrefix, env.Kind)
			return
		}
	}
}

func runConsumer(sess *wsconn.Session, api *webrtc.API, reg *registry.Registry) {
	channel := reg.ClaimReader()
	logPrefix := fmt.Sprintf("consumer[%s/%d]", sess.ID, channel.ID())

	ctrl, err := consumer.New(api, channel, sess, logPrefix)
	if err != nil {
		log.Printf("[ERROR] %s: create controller: %v", logPrefix, err)
		return
	}
	defer ctrl.Close()

	log.Printf("[INFO] %s: opened", logPrefix)
	for {
		env, err := sess.Recv()
		if err != nil {
			log.Printf("[INFO] %s: closed: %v", logPrefix, err)
			return
		}

		switch env.Kind {
		case protocol.KindAnswer:
			if env.SessionDesc == nil {
				log.Printf("[ERROR] %s: answer frame carried no payload", logPrefix)
				return
			}
			if err := ctrl.HandleAnswer(env.SessionDesc.SDP); err != nil {
				log.Printf("[ERROR] %s: handle answer: %v", logPrefix, err)
				return
			}
		case protocol.KindIceCandidate:
			if env.Candidate == nil {
				log.Printf("[ERROR] %s: ice_candidate frame carried no payload", logPrefix)
				return
			}
			if err := ctrl.HandleRemoteCandidate(*env.Candidate); err != nil {
				log.Printf("[ERROR] %s: handle candidate: %v", logPrefix, err)
			}
		case protocol.KindAllIceCandidatesSent:
		default:
			log.Printf("[ERROR] %s: unexpected frame kind %q", logPrefix, env.Kind)
			return
		}
	}
}
