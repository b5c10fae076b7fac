package websocket

import (
	"bytes"
	"io"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// Default values for a Connection's tunable limits (spec Section 3).
const (
	defaultRate                 = 16384
	defaultMaxHandshakeLength   = 8192
	defaultCloseReasonMaxLength = 123 // 125-byte control frame minus 2-byte status code.
)

// Options configures a Connection at construction time. A nil *Options (or
// zero-valued fields within one) means "use the default".
type Options struct {
	// WriteRate bounds the bytes written per Emit cycle. ReadRate is
	// stored on the Connection, but Ingest does not limit how many bytes
	// it decodes per call. Zero means defaultRate for either.
	ReadRate  int
	WriteRate int

	// MaxHandshakeLength bounds the HTTP upgrade bytes the surrounding
	// handshake layer may buffer. This Connection does not itself enforce
	// it (the handshake happens before a Connection exists) but carries
	// it for the caller's convenience. Zero means defaultMaxHandshakeLength.
	MaxHandshakeLength int

	// AllowRSV1, AllowRSV2, AllowRSV3 permit an extension to set the
	// corresponding reserved bit without triggering a protocol error.
	AllowRSV1, AllowRSV2, AllowRSV3 bool

	// NewMessageSink, if set, is consulted on the first frame of every
	// data message; see NewMessageSinkFunc.
	NewMessageSink NewMessageSinkFunc

	// Logger receives structured diagnostic events. A disabled logger
	// (zerolog.Nop()) is used if unset.
	Logger *zerolog.Logger
}

// partialMessage tracks an in-progress fragmented data message (Invariants
// 1 and 2 in spec Section 3: present iff partialOpcode is one of
// TEXT/BINARY, never CONTINUE or a control opcode).
type partialMessage struct {
	opcode    byte
	buf       bytes.Buffer
	sink      Sink
	validator utf8Validator
}

// Connection is a non-blocking RFC 6455 WebSocket engine bound to one
// transport. It owns no goroutines and no locks: a single external event
// loop drives it by calling Ingest as bytes arrive and Emit as the
// transport becomes writable. It is not safe for concurrent use from more
// than one goroutine at a time (spec Section 5: "a single connection is
// not safe for concurrent mutation from multiple threads").
type Connection struct {
	id   string
	role Role
	conn io.Writer // transport write half; Emit writes here.
	log  zerolog.Logger

	openedAt time.Time

	readBuffer []byte

	partial *partialMessage

	readRate int
	sched    *writeScheduler

	maxHandshakeLength int

	allowedRSV [3]bool

	weSentClose      bool
	weInitiatedClose bool
	remoteSentClose  bool

	newMessageSink NewMessageSinkFunc

	transportClosed bool
}

// NewConnection constructs a Connection bound to transport, in the given
// role, with opts applied (a nil opts uses every default).
func NewConnection(transport io.Writer, role Role, opts *Options) *Connection {
	if opts == nil {
		opts = &Options{}
	}

	readRate := opts.ReadRate
	if readRate <= 0 {
		readRate = defaultRate
	}

	maxHandshakeLength := opts.MaxHandshakeLength
	if maxHandshakeLength <= 0 {
		maxHandshakeLength = defaultMaxHandshakeLength
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Connection{
		id:                 shortuuid.New(),
		role:               role,
		conn:               transport,
		log:                logger,
		openedAt:           time.Now(),
		readRate:           readRate,
		sched:              newWriteScheduler(opts.WriteRate),
		maxHandshakeLength: maxHandshakeLength,
		allowedRSV:         [3]bool{opts.AllowRSV1, opts.AllowRSV2, opts.AllowRSV3},
		newMessageSink:     opts.NewMessageSink,
	}

	c.log = c.log.With().Str("conn_id", c.id).Str("role", role.Name()).Logger()
	return c
}

// ID returns the connection's short, log-friendly identifier.
func (c *Connection) ID() string { return c.id }

// OpenedAt returns the timestamp this Connection was constructed, captured
// once and never updated.
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

// ShouldMask reports whether this connection's outbound frames must be
// masked, delegating to its Role.
func (c *Connection) ShouldMask() bool { return c.role.ShouldMask() }

// SetReadRate updates the stored read rate. Ingest does not consult it.
func (c *Connection) SetReadRate(n int) {
	if n <= 0 {
		n = defaultRate
	}
	c.readRate = n
}

// SetWriteRate updates the bytes-per-Emit-cycle budget.
func (c *Connection) SetWriteRate(n int) {
	c.sched.setRate(n)
}

// SetMaxHandshakeLength updates the advisory handshake byte bound.
func (c *Connection) SetMaxHandshakeLength(n int) {
	if n <= 0 {
		n = defaultMaxHandshakeLength
	}
	c.maxHandshakeLength = n
}

// MaxHandshakeLength returns the advisory handshake byte bound.
func (c *Connection) MaxHandshakeLength() int { return c.maxHandshakeLength }

// SetRSVBitAllowed configures whether bit (1, 2, or 3) may be set on an
// inbound frame without that being a protocol error. An out-of-range bit
// index is programmer error, not a runtime condition to recover from.
func (c *Connection) SetRSVBitAllowed(bit int, allowed bool) {
	if bit < 1 || bit > 3 {
		panic("websocket: invalid RSV bit index")
	}
	c.allowedRSV[bit-1] = allowed
}

// IsRSVBitAllowed reports the current policy for bit (1, 2, or 3).
func (c *Connection) IsRSVBitAllowed(bit int) bool {
	if bit < 1 || bit > 3 {
		panic("websocket: invalid RSV bit index")
	}
	return c.allowedRSV[bit-1]
}

// SetNewMessageSinkCallback installs (or clears, with nil) the per-message
// sink policy callback.
func (c *Connection) SetNewMessageSinkCallback(cb NewMessageSinkFunc) {
	c.newMessageSink = cb
}

// IsWriteBufferEmpty reports whether the priority queue, normal queue, and
// write cursor are all empty — nothing is waiting to be flushed.
func (c *Connection) IsWriteBufferEmpty() bool {
	return c.sched.isEmpty()
}

// IsDisconnecting reports whether the close handshake has begun, from
// either side.
func (c *Connection) IsDisconnecting() bool {
	return c.weSentClose || c.remoteSentClose
}

// rsvAllowed reports whether f's reserved bits are all permitted under the
// current policy.
func (c *Connection) rsvAllowed(f *frame) bool {
	return (!f.rsv1 || c.allowedRSV[0]) &&
		(!f.rsv2 || c.allowedRSV[1]) &&
		(!f.rsv3 || c.allowedRSV[2])
}

// Ingest appends data to the read buffer and decodes as many complete
// frames as are available, reducing each into zero or more Update events.
// It never blocks: a frame that is not yet fully buffered simply waits for
// the next Ingest call. Ingest may return early, with fewer events than
// frames consumed, the moment a terminal protocol error is reached: that
// Error Update is the last one the call returns, and any bytes not yet
// decoded stay in the read buffer.
func (c *Connection) Ingest(data []byte) []Update {
	if len(data) > 0 {
		c.readBuffer = append(c.readBuffer, data...)
	}

	var updates []Update

	for {
		if len(c.readBuffer) == 0 {
			break
		}

		f, consumed, err := parseFrame(c.readBuffer)
		if err != nil {
			updates = append(updates, c.protocolViolation(ErrorProtocolError, CloseProtocolError, err))
			return updates
		}
		if consumed == 0 {
			// Incomplete frame; wait for more bytes.
			break
		}

		c.readBuffer = c.readBuffer[consumed:]

		u, ok, fatal := c.dispatchFrame(f)
		if fatal != nil {
			updates = append(updates, *fatal)
			return updates
		}
		if ok {
			updates = append(updates, u)
		}

		if c.remoteSentClose {
			break
		}
	}

	return updates
}

// dispatchFrame applies protocol rules to a single decoded frame and
// reduces it to at most one Update. ok reports whether an Update was
// produced; fatal, when non-nil, is a terminal Update after which Ingest
// must stop (a protocol violation already enqueued its own CLOSE).
func (c *Connection) dispatchFrame(f *frame) (u Update, ok bool, fatal *Update) {
	if !c.rsvAllowed(f) {
		out := c.protocolViolation(ErrorRsvBitSet, CloseProtocolError, ErrReservedBits)
		return Update{}, false, &out
	}

	if !isValidOpcode(f.opcode) {
		out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrInvalidOpcode)
		return Update{}, false, &out
	}

	if c.remoteSentClose && !isControlFrame(f.opcode) {
		out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrProtocolError)
		return Update{}, false, &out
	}

	if isControlFrame(f.opcode) {
		if !f.fin {
			out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrControlFragmented)
			return Update{}, false, &out
		}
		if len(f.payload) > maxControlPayload {
			out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrControlTooLarge)
			return Update{}, false, &out
		}
	}

	switch f.opcode {
	case OpcodeClose:
		return c.handleClose(f)
	case OpcodePing:
		return c.handlePing(f)
	case OpcodePong:
		return newReadPong(c.id, f.payload), true, nil
	case OpcodeText, OpcodeBinary:
		return c.handleDataFrame(f)
	case opcodeContinuation:
		return c.handleContinuation(f)
	default:
		// Unreachable: isValidOpcode already rejected anything else.
		panic("websocket: unexpected opcode reached dispatchFrame")
	}
}

func (c *Connection) handlePing(f *frame) (Update, bool, *Update) {
	// RFC 6455 Section 5.5.3: a Pong is sent in response, with identical
	// application data, routed through the ordinary Write path — which
	// itself sends control opcodes to the priority queue, so the Pong
	// still jumps ahead of any data frame queued after the triggering
	// Ping even though it travels the "normal" write API. Suppressed once
	// the close handshake has started in either direction: no new frames
	// are queued past that point.
	if !c.IsDisconnecting() {
		_ = c.Write(f.payload, OpcodePong, true)
	}
	return newReadPing(c.id, f.payload), true, nil
}

func (c *Connection) handleClose(f *frame) (Update, bool, *Update) {
	code := CloseNoStatusReceived
	var reason []byte
	if len(f.payload) >= 2 {
		code = CloseCode(uint16(f.payload[0])<<8 | uint16(f.payload[1]))
		reason = f.payload[2:]
	}

	validCode := len(f.payload) == 0 || (len(f.payload) >= 2 && IsValidCloseCode(uint16(code)))
	if len(reason) > 0 && !validateUTF8(reason) {
		validCode = false
	}

	echoCode := code
	if !validCode {
		echoCode = CloseProtocolError
	}
	if len(f.payload) == 0 {
		echoCode = CloseNormalClosure
	}

	c.remoteSentClose = true

	// We already sent our own CLOSE and are now seeing the remote's reply
	// to it: the handshake is complete, no further frame goes out.
	if c.weInitiatedClose {
		c.log.Info().Msg("close handshake completed")
		c.closeTransport()
		return newReadSockDisconnect(c.id), true, nil
	}

	if !c.weSentClose {
		c.log.Info().Str("close_code", echoCode.String()).Msg("remote initiated close, echoing")
		c.enqueueClose(echoCode, nil)
		c.sched.armCloseAfterWrite()
	}

	return newReadDisconnect(c.id, code, reason), true, nil
}

func (c *Connection) handleDataFrame(f *frame) (Update, bool, *Update) {
	if c.partial != nil {
		out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrFrameInProgress)
		return Update{}, false, &out
	}

	decision := c.sinkDecisionFor(f)
	if decision.mode == sinkModeReject {
		out := c.rejectMessage()
		return Update{}, false, &out
	}

	if f.fin {
		return c.completeMessage(f.opcode, f.payload, decision)
	}

	pm := &partialMessage{opcode: f.opcode, sink: decision.sink}
	if f.opcode == OpcodeText {
		if !pm.validator.step(f.payload) {
			out := c.invalidPayload()
			return Update{}, false, &out
		}
	}

	c.partial = pm
	if err := writeToPartial(pm, f.payload); err != nil {
		out := c.sinkFailure(err)
		return out, true, nil
	}
	return Update{}, false, nil
}

func (c *Connection) handleContinuation(f *frame) (Update, bool, *Update) {
	if c.partial == nil {
		out := c.protocolViolation(ErrorProtocolError, CloseProtocolError, ErrUnexpectedContinuation)
		return Update{}, false, &out
	}

	if c.partial.opcode == OpcodeText {
		if !c.partial.validator.step(f.payload) {
			out := c.invalidPayload()
			return Update{}, false, &out
		}
	}

	if f.fin {
		opcode := c.partial.opcode
		if opcode == OpcodeText && !c.partial.validator.complete() {
			out := c.invalidPayload()
			return Update{}, false, &out
		}

		if err := writeToPartial(c.partial, f.payload); err != nil {
			out := c.sinkFailure(err)
			c.partial = nil
			return out, true, nil
		}

		var payload []byte
		if c.partial.sink == nil {
			payload = append([]byte(nil), c.partial.buf.Bytes()...)
		}

		c.partial = nil
		return newReadMessage(c.id, MessageType(opcode), payload), true, nil
	}

	if err := writeToPartial(c.partial, f.payload); err != nil {
		out := c.sinkFailure(err)
		return out, true, nil
	}
	return Update{}, false, nil
}

// completeMessage handles an unfragmented (FIN=1 on the first frame) data
// message.
func (c *Connection) completeMessage(opcode byte, payload []byte, decision SinkDecision) (Update, bool, *Update) {
	if opcode == OpcodeText && !validateUTF8(payload) {
		out := c.invalidPayload()
		return Update{}, false, &out
	}

	if decision.mode == sinkModeStream {
		if _, err := decision.sink.Write(payload); err != nil {
			return c.sinkFailure(err), true, nil
		}
		return newReadMessage(c.id, MessageType(opcode), nil), true, nil
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return newReadMessage(c.id, MessageType(opcode), out), true, nil
}

func writeToPartial(pm *partialMessage, payload []byte) error {
	if pm.sink != nil {
		_, err := pm.sink.Write(payload)
		return err
	}
	pm.buf.Write(payload)
	return nil
}

// sinkDecisionFor consults the configured NewMessageSinkFunc, defaulting
// to AcceptBuffer when none is set.
func (c *Connection) sinkDecisionFor(f *frame) SinkDecision {
	if c.newMessageSink == nil {
		return AcceptBuffer()
	}
	return c.newMessageSink(MessageHeaders{
		Type:          MessageType(f.opcode),
		Fin:           f.fin,
		PayloadLength: uint64(len(f.payload)),
	})
}

// rejectMessage implements the Reject() sink disposition: CLOSE 1003 and
// close_after_write, the same protocol-violation flow used for unsupported
// data the engine itself refuses.
func (c *Connection) rejectMessage() Update {
	return c.protocolViolation(ErrorProtocolError, CloseUnsupportedData, ErrSinkRejected)
}

func (c *Connection) invalidPayload() Update {
	c.partial = nil
	out := newErrorUpdate(c.id, ErrorInvalidPayload, ErrInvalidUTF8)
	c.log.Warn().Err(ErrInvalidUTF8).Msg("invalid UTF-8 in text message, closing")
	c.enqueueClose(CloseInvalidFramePayloadData, nil)
	c.sched.armCloseAfterWrite()
	c.weSentClose = true
	c.weInitiatedClose = true
	return out
}

func (c *Connection) sinkFailure(err error) Update {
	c.log.Warn().Err(err).Msg("message sink write failed")
	return newErrorUpdate(c.id, ErrorInvalidTargetStream, err)
}

// protocolViolation implements spec Section 7's protocol-error policy:
// enqueue CLOSE with the given code, arm close_after_write, and return the
// Error Update the caller should emit before Ingest stops.
func (c *Connection) protocolViolation(ec ErrorCode, cc CloseCode, cause error) Update {
	out := newErrorUpdate(c.id, ec, cause)
	c.log.Warn().Err(cause).Str("close_code", cc.String()).Msg("protocol violation, closing")
	c.enqueueClose(cc, nil)
	c.sched.armCloseAfterWrite()
	c.weSentClose = true
	c.weInitiatedClose = true
	return out
}

// Write encodes data as a single frame and enqueues it for transmission.
// Control opcodes (CLOSE/PING/PONG) go to the priority queue; everything
// else goes to the normal queue.
func (c *Connection) Write(data []byte, opcode byte, fin bool) error {
	if isDataFrame(opcode) && c.weSentClose {
		return ErrClosed
	}

	encoded, err := encodeFrame(opcode, data, fin, c.role.ShouldMask())
	if err != nil {
		return err
	}

	c.sched.enqueue(encoded, isPriorityOpcode(opcode))
	return nil
}

// WriteMultiFramed chunks data into frames of at most frameSize bytes and
// enqueues them: the caller's opcode (TEXT or BINARY) on the first
// fragment, CONTINUE on every subsequent one, and fin=true only on the
// last, per RFC 6455 Section 5.4.
func (c *Connection) WriteMultiFramed(data []byte, opcode byte, frameSize int) error {
	if opcode != OpcodeText && opcode != OpcodeBinary {
		return ErrInvalidMessageType
	}
	if frameSize < 1 {
		return ErrInvalidFrameSize
	}
	if c.weSentClose {
		return ErrClosed
	}

	if len(data) == 0 {
		return c.Write(data, opcode, true)
	}

	for offset := 0; offset < len(data); offset += frameSize {
		end := offset + frameSize
		if end > len(data) {
			end = len(data)
		}

		frameOpcode := byte(opcodeContinuation)
		if offset == 0 {
			frameOpcode = opcode
		}
		fin := end == len(data)

		if err := c.Write(data[offset:end], frameOpcode, fin); err != nil {
			return err
		}
	}

	return nil
}

// SendDisconnect initiates (or responds to) the closing handshake: it
// enqueues a CLOSE frame with code and reason, and arms close_after_write.
func (c *Connection) SendDisconnect(code CloseCode, reason string) error {
	if c.weSentClose {
		return nil
	}
	if !c.remoteSentClose {
		c.weInitiatedClose = true
	}
	if err := c.enqueueClose(code, []byte(reason)); err != nil {
		return err
	}
	c.sched.armCloseAfterWrite()
	return nil
}

func (c *Connection) enqueueClose(code CloseCode, reason []byte) error {
	if len(reason) > defaultCloseReasonMaxLength {
		reason = reason[:defaultCloseReasonMaxLength]
	}

	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)

	c.weSentClose = true

	encoded, err := encodeFrame(OpcodeClose, payload, true, c.role.ShouldMask())
	if err != nil {
		return err
	}
	c.sched.enqueue(encoded, true)
	return nil
}

// Emit runs one flush cycle of the write scheduler against the
// connection's transport, writing up to the configured write rate. If
// close_after_write is armed and the write buffer just became empty, the
// transport is closed (if it implements io.Closer) and a terminal
// ReadSockDisconnect Update is returned.
func (c *Connection) Emit() (Update, bool, error) {
	if c.transportClosed {
		return Update{}, false, nil
	}

	shouldClose, err := c.sched.flush(c.conn, time.Now())
	if err != nil {
		c.log.Error().Err(err).Msg("transport write failed")
		return newErrorUpdate(c.id, ErrorWrite, err), true, err
	}

	if shouldClose {
		c.closeTransport()
		return newReadSockDisconnect(c.id), true, nil
	}

	return Update{}, false, nil
}

func (c *Connection) closeTransport() {
	if c.transportClosed {
		return
	}
	c.transportClosed = true
	if closer, ok := c.conn.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.log.Warn().Err(err).Msg("error closing transport")
		}
	}
}

// Close forces an immediate, non-graceful shutdown: any queued frames are
// discarded, the transport is closed if still open, and a terminal
// ReadSockDisconnect Update is returned. It is idempotent.
func (c *Connection) Close() Update {
	c.closeTransport()
	return newReadSockDisconnect(c.id)
}
