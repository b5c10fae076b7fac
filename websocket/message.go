package websocket

// MessageType represents a WebSocket application message type.
//
// WebSocket supports two application message types (RFC 6455 Section 5.6):
// text (UTF-8 encoded) and binary (arbitrary bytes).
type MessageType int

const (
	// TextMessage represents a UTF-8 text message (opcode 0x1).
	// Text frames MUST contain valid UTF-8 data (RFC 6455 Section 8.1).
	TextMessage MessageType = 1

	// BinaryMessage represents a binary data message (opcode 0x2).
	BinaryMessage MessageType = 2
)

// String returns a human-readable message type name.
func (mt MessageType) String() string {
	switch mt {
	case TextMessage:
		return "Text"
	case BinaryMessage:
		return "Binary"
	default:
		return "Unknown"
	}
}

// Sink receives the payload bytes of a message the application chose to
// stream instead of buffering in memory. Implementations are supplied by
// the caller via AcceptSink.
type Sink interface {
	Write(p []byte) (int, error)
}

// MessageHeaders describes a message as known at the moment its first frame
// arrives, before the payload (or its full length, for fragmented messages)
// is available. A NewMessageSinkFunc inspects these to decide what to do
// with the message body.
type MessageHeaders struct {
	// Type is the message's data type: TextMessage or BinaryMessage.
	Type MessageType

	// Fin reports whether the first frame is also the last — i.e. whether
	// the message arrives unfragmented.
	Fin bool

	// PayloadLength is the first frame's declared payload length. For a
	// fragmented message this is only the length of the first fragment,
	// not the whole message.
	PayloadLength uint64
}

// sinkMode identifies which of the three dispositions a SinkDecision holds.
type sinkMode int

const (
	sinkModeBuffer sinkMode = iota
	sinkModeReject
	sinkModeStream
)

// SinkDecision is the outcome of a NewMessageSinkFunc callback: what the
// connection should do with the message body that follows.
//
// A decision is produced only by AcceptBuffer, Reject, or AcceptSink — there
// is no way to construct an invalid one, which is the idiomatic alternative
// to a tri-state return value where "anything else" is a fatal misuse.
type SinkDecision struct {
	mode sinkMode
	sink Sink
}

// AcceptBuffer accepts the message and has the connection buffer its
// payload in memory, to be delivered whole as a ReadMessage Update once the
// final fragment arrives. This is the default policy when no
// NewMessageSinkFunc is configured.
func AcceptBuffer() SinkDecision {
	return SinkDecision{mode: sinkModeBuffer}
}

// Reject declines the message. The connection responds by sending a CLOSE
// frame with code 1003 (unsupported data) and transitions to closing.
func Reject() SinkDecision {
	return SinkDecision{mode: sinkModeReject}
}

// AcceptSink accepts the message and streams its payload bytes to s as
// frames arrive, instead of buffering the whole message in memory. s.Write
// is called once per fragment, when that fragment has been fully buffered;
// a frame split across several Ingest calls is written in one call.
func AcceptSink(s Sink) SinkDecision {
	return SinkDecision{mode: sinkModeStream, sink: s}
}

// NewMessageSinkFunc is consulted once per message, when the message's first
// frame has been fully decoded, to decide how the connection should handle the
// message body. If unset, the connection behaves as if every message were
// accepted with AcceptBuffer.
type NewMessageSinkFunc func(MessageHeaders) SinkDecision
