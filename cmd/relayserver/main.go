// Command relayserver runs the pairwise WebRTC relay server.
//
// Grounded on app.rs's clap options (--address default "0.0.0.0",
// --port default "9010") and the teacher's cmd/client/main.go flag
// idiom.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/n0remac/webrtc-relay/listener"
	"github.com/n0remac/webrtc-relay/registry"
	"github.com/n0remac/webrtc-relay/rtcapi"
)

func main() {
	address := flag.String("address", "0.0.0.0", "IP address to bind")
	port := flag.String("port", "9010", "port number")
	flag.Parse()

	api, err := rtcapi.New()
	if err != nil {
		log.Fatalf("relayserver: build webrtc api: %v", err)
	}

	reg := registry.New()
	l := listener.New(fmt.Sprintf("%s:%s", *address, *port), api, reg)

	if err := l.ListenAndServe(); err != nil {
		log.Fatalf("relayserver: %v", err)
	}
}
