// Command wsechod is a minimal WebSocket echo server demonstrating the
// engine's outer-loop contract: one goroutine per connection performs
// blocking reads off the network and feeds the bytes to Connection.Ingest,
// then drains Connection.Emit until the write buffer is empty. The engine
// itself holds no locks and spawns no goroutines of its own — it only
// requires that a single goroutine drive a given Connection at a time,
// which a goroutine-per-connection server naturally provides.
package main

import (
	"flag"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coregx/wsengine/internal/handshake"
	"github.com/coregx/wsengine/websocket"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	http.HandleFunc("/ws", handleWebSocket)

	log.Info().Str("addr", *addr).Msg("wsechod listening")
	log.Fatal().Err(http.ListenAndServe(*addr, nil)).Msg("server stopped")
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	result, err := handshake.Upgrade(w, r, &handshake.Options{CheckOrigin: handshake.CheckSameOrigin})
	if err != nil {
		log.Warn().Err(err).Msg("upgrade failed")
		http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
		return
	}

	l := log.With().Str("remote", r.RemoteAddr).Logger()
	serveEcho(result.Conn, result.Prefetched, l)
}

// serveEcho drives one Connection end to end: it owns the only goroutine
// permitted to touch conn, alternating blocking network reads with
// Ingest/Emit calls until the engine reports the transport closed.
func serveEcho(netConn net.Conn, prefetched []byte, l zerolog.Logger) {
	conn := websocket.NewConnection(netConn, websocket.ServerRole, &websocket.Options{
		Logger: &l,
	})
	defer func() { _ = netConn.Close() }()

	if len(prefetched) > 0 {
		if done := handleUpdates(conn, conn.Ingest(prefetched), l); done {
			return
		}
		if drainWrites(conn, l) {
			return
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := netConn.Read(buf)
		if n > 0 {
			if done := handleUpdates(conn, conn.Ingest(buf[:n]), l); done {
				return
			}
			if drainWrites(conn, l) {
				return
			}
		}
		if err != nil {
			l.Debug().Err(err).Msg("connection read ended")
			conn.Close()
			return
		}
	}
}

// handleUpdates reduces a batch of Updates from Ingest: echoing messages
// back, logging errors, and reporting whether the connection has reached
// its terminal state.
func handleUpdates(conn *websocket.Connection, updates []websocket.Update, l zerolog.Logger) (done bool) {
	for _, u := range updates {
		switch u.Tag {
		case websocket.UpdateRead:
			switch u.ReadCode {
			case websocket.ReadMessage:
				if err := conn.Write(u.Data, opcodeFor(u.MessageType), true); err != nil {
					l.Warn().Err(err).Msg("echo write failed")
				}
			case websocket.ReadSockDisconnect:
				return true
			}
		case websocket.UpdateError:
			l.Warn().Err(u.Err).Str("code", u.ErrorCode.String()).Msg("connection error")
		}
	}
	return false
}

// drainWrites runs Emit until the write buffer empties or the transport
// closes, returning true once the connection is finished.
func drainWrites(conn *websocket.Connection, l zerolog.Logger) bool {
	for !conn.IsWriteBufferEmpty() {
		u, ok, err := conn.Emit()
		if err != nil {
			l.Warn().Err(err).Msg("emit failed")
		}
		if ok && u.IsTerminal() {
			return true
		}
	}
	return false
}

func opcodeFor(mt websocket.MessageType) byte {
	if mt == websocket.BinaryMessage {
		return websocket.OpcodeBinary
	}
	return websocket.OpcodeText
}
