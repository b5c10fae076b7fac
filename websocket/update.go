package websocket

// UpdateTag identifies the broad category of an Update event: a successful
// read from the remote side, or an error condition the connection observed.
type UpdateTag int

const (
	// UpdateRead carries a successfully decoded inbound event: a complete
	// message, a control frame, or a lifecycle transition.
	UpdateRead UpdateTag = iota

	// UpdateError carries an error condition. Most error Updates are
	// followed by the connection arming close_after_write; see ErrorCode.
	UpdateError
)

// String returns a human-readable tag name.
func (t UpdateTag) String() string {
	switch t {
	case UpdateRead:
		return "Read"
	case UpdateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ReadCode distinguishes the kinds of successful inbound event an
// UpdateRead Update may carry.
type ReadCode int

const (
	// ReadMessage carries a complete application message (TEXT or BINARY),
	// reassembled from however many fragments it was split across.
	ReadMessage ReadCode = iota

	// ReadPing carries an inbound PING control frame's payload.
	ReadPing

	// ReadPong carries an inbound PONG control frame's payload.
	ReadPong

	// ReadDisconnect reports that the remote end initiated the closing
	// handshake (sent a CLOSE frame). The connection has already enqueued
	// an echoing CLOSE and armed close_after_write by the time this is
	// emitted.
	ReadDisconnect

	// ReadSockDisconnect reports that the transport has been closed:
	// close_after_write drained the write buffer, the remote's CLOSE
	// completed a closing handshake this side initiated, or Close was
	// called. This is always the last Update a connection emits.
	ReadSockDisconnect
)

// String returns a human-readable read code name.
func (c ReadCode) String() string {
	switch c {
	case ReadMessage:
		return "Message"
	case ReadPing:
		return "Ping"
	case ReadPong:
		return "Pong"
	case ReadDisconnect:
		return "Disconnect"
	case ReadSockDisconnect:
		return "SockDisconnect"
	default:
		return "Unknown"
	}
}

// ErrorCode distinguishes the kinds of error condition an UpdateError
// Update may carry.
type ErrorCode int

const (
	// ErrorWrite reports a transport-level failure while flushing the
	// write queue. The connection does not self-terminate on this; the
	// caller decides whether to close.
	ErrorWrite ErrorCode = iota

	// ErrorRsvBitSet reports an RSV bit set on a frame that this
	// connection has not been configured to allow. CLOSE 1002 is
	// enqueued and close_after_write is armed.
	ErrorRsvBitSet

	// ErrorProtocolError reports a generic protocol violation: malformed
	// frame, illegal opcode sequence, or oversize/fragmented control
	// frame. CLOSE 1002 is enqueued and close_after_write is armed. A
	// message declined by the sink callback is also reported with this
	// code, with CLOSE 1003 enqueued instead.
	ErrorProtocolError

	// ErrorInvalidPayload reports invalid UTF-8 in a TEXT message. CLOSE
	// 1007 is enqueued and close_after_write is armed.
	ErrorInvalidPayload

	// ErrorInvalidTargetStream reports that the application-provided sink
	// failed while receiving message payload bytes. The connection is not
	// terminated; the frame is still accounted for.
	ErrorInvalidTargetStream
)

// String returns a human-readable error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrorWrite:
		return "Write"
	case ErrorRsvBitSet:
		return "RsvBitSet"
	case ErrorProtocolError:
		return "ProtocolError"
	case ErrorInvalidPayload:
		return "InvalidPayload"
	case ErrorInvalidTargetStream:
		return "InvalidTargetStream"
	default:
		return "Unknown"
	}
}

// Update is a single tagged event emitted by Ingest. SourceConnection
// identifies the connection that produced it, which matters when an outer
// event loop multiplexes many connections through a shared channel.
//
// Exactly one of ReadCode/ErrorCode is meaningful, selected by Tag. The
// payload fields (MessageType, Data, CloseCode) are populated according to
// which ReadCode/ErrorCode is set; see the accessor-style constructors in
// this file for the valid combinations.
type Update struct {
	Tag              UpdateTag
	SourceConnection string

	ReadCode  ReadCode
	ErrorCode ErrorCode

	// MessageType is set for ReadMessage.
	MessageType MessageType

	// Data carries the event's payload bytes: the reassembled message for
	// ReadMessage, the control frame payload for ReadPing/ReadPong, or the
	// UTF-8 close reason for ReadDisconnect.
	Data []byte

	// CloseCode is set for ReadDisconnect (the code the remote sent, or
	// CloseNoStatusReceived if it sent none) and has no meaning otherwise.
	CloseCode CloseCode

	// Err carries the underlying error of every UpdateError: the
	// transport or sink failure for ErrorWrite and
	// ErrorInvalidTargetStream, or the protocol sentinel (such as
	// ErrReservedBits or ErrInvalidUTF8) for the other codes.
	Err error
}

func newReadMessage(connID string, mt MessageType, data []byte) Update {
	return Update{Tag: UpdateRead, SourceConnection: connID, ReadCode: ReadMessage, MessageType: mt, Data: data}
}

func newReadPing(connID string, data []byte) Update {
	return Update{Tag: UpdateRead, SourceConnection: connID, ReadCode: ReadPing, Data: data}
}

func newReadPong(connID string, data []byte) Update {
	return Update{Tag: UpdateRead, SourceConnection: connID, ReadCode: ReadPong, Data: data}
}

func newReadDisconnect(connID string, code CloseCode, reason []byte) Update {
	return Update{Tag: UpdateRead, SourceConnection: connID, ReadCode: ReadDisconnect, CloseCode: code, Data: reason}
}

func newReadSockDisconnect(connID string) Update {
	return Update{Tag: UpdateRead, SourceConnection: connID, ReadCode: ReadSockDisconnect}
}

func newErrorUpdate(connID string, code ErrorCode, err error) Update {
	return Update{Tag: UpdateError, SourceConnection: connID, ErrorCode: code, Err: err}
}

// IsTerminal reports whether this Update is the final one a connection will
// ever emit (ReadSockDisconnect).
func (u Update) IsTerminal() bool {
	return u.Tag == UpdateRead && u.ReadCode == ReadSockDisconnect
}
