// Package server runs the lifecycle of each accepted connection:
// handshake, registration, the read loop and cleanup.
package server

import (
	"errors"
	"log"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// serve drives one connection from Handshaking through Active to
// Disconnected.
func (r *Router) serve(c *connection.Connection) {
	m, err := r.handshake(c)
	if err != nil {
		logHandshakeFailure(c, err)
		c.Disconnect()
		return
	}

	r.Dispatch(protocol.NewRosterUpdate(protocol.UpdateJoined, m.identity))

	err = c.Listen(
		func(msg protocol.Message) { r.handleInbound(m, msg) },
		func(err error) { log.Printf("Invalid message from %s: %v", m.identity, err) },
	)
	if err != nil {
		log.Printf("Client %s disconnected: %v", m.identity, err)
	} else {
		log.Printf("Client %s connection closed", m.identity)
	}

	r.Unregister(c)
}

func logHandshakeFailure(c *connection.Connection, err error) {
	switch {
	case errors.Is(err, connection.ErrPeerDisconnected):
		log.Printf("Client initialization failed for %s: %v", c, err)
	case errors.Is(err, errRouterStopped):
		log.Printf("Client %s arrived during shutdown", c)
	default:
		log.Printf("Unknown error while initializing %s: %v", c, err)
	}
}
