package websocket

// Streaming UTF-8 validation using Bjoern Hoehrmann's DFA
// (https://bjoern.hoehrmann.de/utf8/decoder/dfa/). No library in the
// dependency graph offers a validator that can resume across
// non-contiguous buffers, which a fragmented TEXT message requires (a
// multibyte sequence may be split across fragment, or even Ingest call,
// boundaries); unicode/utf8.Valid only accepts one contiguous slice, so it
// cannot carry partial-sequence state between calls. This table is the
// standard reference implementation, not a policy choice.

const (
	utf8Accept = 0
	utf8Reject = 12
)

// utf8ByteClass maps each possible byte value to one of 12 character
// classes recognized by the state table below.
var utf8ByteClass = [256]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2,
	10, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 4, 3, 3,
	11, 6, 6, 6, 5, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

// utf8StateTable maps (state, class) to the next state. State values are
// pre-multiplied by 12 (the number of classes) so a transition is a single
// array index, not a multiply-and-add.
var utf8StateTable = [108]byte{
	0, 12, 24, 36, 60, 96, 84, 12, 12, 12, 48, 72,
	12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
	12, 0, 12, 12, 12, 12, 12, 0, 12, 0, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 24, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 24, 12, 12, 12, 12,
	12, 24, 12, 12, 12, 12, 12, 12, 12, 24, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 36, 12, 36, 12, 12,
	12, 36, 12, 12, 12, 12, 12, 12, 12, 12, 12, 12,
}

// utf8DecodeStep advances the DFA by one byte. It returns the new state;
// utf8Accept means a complete, valid code point just finished, utf8Reject
// means the byte sequence is invalid, and any other value means more
// continuation bytes are expected.
func utf8DecodeStep(state, b byte) byte {
	class := utf8ByteClass[b]
	if state != utf8Accept {
		return utf8StateTable[state+class]
	}
	return utf8StateTable[class]
}

// utf8Validator holds DFA state that persists across fragment boundaries,
// so a multibyte sequence split across two Ingest calls is still validated
// correctly.
type utf8Validator struct {
	state byte
}

// step feeds p through the DFA, advancing state in place. It returns false
// as soon as an invalid byte sequence is detected; once it returns false
// the validator must not be reused.
func (v *utf8Validator) step(p []byte) bool {
	for _, b := range p {
		v.state = utf8DecodeStep(v.state, b)
		if v.state == utf8Reject {
			return false
		}
	}
	return true
}

// complete reports whether the validator ended on a code point boundary,
// i.e. did not stop mid-sequence. Call this once the final fragment of a
// message has been fed through step.
func (v *utf8Validator) complete() bool {
	return v.state == utf8Accept
}

// validateUTF8 reports whether p is, on its own, a complete and valid
// UTF-8 byte sequence. Used for the one-shot cases: the payload of an
// unfragmented TEXT message, and a close frame's reason string, which RFC
// 6455 Section 5.5.1 bounds at 123 bytes. Both arrive fully buffered in a
// single frame, so there is no streaming concern and no need for
// utf8Validator's resumable state.
func validateUTF8(p []byte) bool {
	var v utf8Validator
	return v.step(p) && v.complete()
}
