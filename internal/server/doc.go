// Package server implements the chat room relay.
//
// A Router owns the live roster and the connection registry. Every accepted
// connection, whether a raw TCP socket or a WebSocket upgraded by the HTTP
// surface, is handed to the Router, which runs the nickname handshake,
// registers the participant, and relays its frames until it disconnects.
// The implementation is organized into specialized files for configuration,
// routing, handshakes, listeners and HTTP handlers.
package server
