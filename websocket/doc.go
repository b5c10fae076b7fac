// Package websocket implements a non-blocking RFC 6455 WebSocket connection
// engine.
//
// The engine is a per-connection state machine: it ingests arbitrary byte
// chunks from a transport (via Ingest), reassembles them into frames and
// messages per the wire protocol, and emits a stream of Update events.
// Outbound application payloads are encoded into frames and queued for
// writing; Emit drains that queue against the connection's transport.
//
// The engine never performs socket accept/connect, TLS, or the HTTP upgrade
// handshake itself — an outer event loop owns the transport's lifecycle and
// drives Ingest/Emit as bytes become available and the socket is writable.
// See internal/handshake for the collaborator that performs the opening
// handshake before a Connection is constructed.
//
// RFC Reference: https://datatracker.ietf.org/doc/html/rfc6455
package websocket
