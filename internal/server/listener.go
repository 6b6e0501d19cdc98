package server

import (
	"errors"
	"log"
	"net"
)

// acceptLoop accepts TCP connections until the listener is closed. Each
// accepted socket is handed to the router, which never blocks this loop.
func (s *Server) acceptLoop(ln net.Listener) error {
	log.Printf("Listening for connections on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Accept error: %v", err)
			return err
		}

		log.Printf("New connection from %s", conn.RemoteAddr())
		s.router.AddConnection(conn)
	}
}
