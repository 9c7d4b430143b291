// Package listener binds an HTTP server, upgrades every incoming
// connection to a WebSocket, and spawns a detached session goroutine per
// accepted connection.
//
// Grounded on Server::run in server.rs (TCP accept loop spawning one
// Socket::run() task per connection) and on the teacher's
// websocket.Upgrader + CreateWebsocket pattern in
// websocket/websocket.go, adapted from a room-keyed hub to the relay's
// plain per-connection dispatch.
package listener

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pion/webrtc/v4"

	"github.com/n0remac/webrtc-relay/registry"
	"github.com/n0remac/webrtc-relay/session"
	"github.com/n0remac/webrtc-relay/wsconn"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Listener binds one HTTP address and dispatches every accepted
// WebSocket connection to the session package.
type Listener struct {
	addr string
	api  *webrtc.API
	reg  *registry.Registry
	mux  *http.ServeMux
}

// New builds a Listener bound to addr (host:port), wiring up a single
// shared pion API and rendezvous registry shared by every connection it
// accepts.
func New(addr string, api *webrtc.API, reg *registry.Registry) *Listener {
	l := &Listener{
		addr: addr,
		api:  api,
		reg:  reg,
		mux:  http.NewServeMux(),
	}
	l.mux.HandleFunc("/ws", l.handleWS)
	return l
}

// ListenAndServe binds the address and blocks serving connections until
// an unrecoverable error occurs.
func (l *Listener) ListenAndServe() error {
	log.Printf("[INFO] listening | %v", map[string]interface{}{"addr": l.addr})
	return http.ListenAndServe(l.addr, l.mux)
}

func (l *Listener) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] ws upgrade: %v | %v", err, map[string]interface{}{"remote": r.RemoteAddr})
		return
	}

	sess := wsconn.New(conn)
	go session.Run(sess, l.api, l.reg)
}
