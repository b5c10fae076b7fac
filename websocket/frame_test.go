package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFrameS1 decodes the masked single TEXT frame scenario from the
// RFC conformance corpus: 81 85 37 FA 21 3D 7F 9F 4D 51 58 -> "Hello".
func TestParseFrameS1(t *testing.T) {
	wire := []byte{0x81, 0x85, 0x37, 0xFA, 0x21, 0x3D, 0x7F, 0x9F, 0x4D, 0x51, 0x58}

	f, consumed, err := parseFrame(wire)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, len(wire), consumed)
	assert.True(t, f.fin)
	assert.Equal(t, byte(OpcodeText), f.opcode)
	assert.True(t, f.masked)
	assert.Equal(t, "Hello", string(f.payload))
}

func TestParseFrameNeedsMoreBytes(t *testing.T) {
	wire := []byte{0x81, 0x85, 0x37, 0xFA, 0x21, 0x3D, 0x7F, 0x9F}

	f, consumed, err := parseFrame(wire)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, consumed)
}

func TestParseFrameEmptyHeaderNeedsMoreBytes(t *testing.T) {
	f, consumed, err := parseFrame([]byte{0x81})
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Zero(t, consumed)
}

func TestParseFrameExtendedLength16(t *testing.T) {
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire, err := encodeFrame(OpcodeBinary, payload, true, false)
	require.NoError(t, err)

	f, consumed, err := parseFrame(wire)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, len(wire), consumed)
	assert.Equal(t, payload, f.payload)
}

func TestParseFrameExtendedLength64(t *testing.T) {
	payload := make([]byte, 70000)
	wire, err := encodeFrame(OpcodeBinary, payload, true, false)
	require.NoError(t, err)

	f, consumed, err := parseFrame(wire)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, len(wire), consumed)
	assert.Len(t, f.payload, len(payload))
}

func TestParseFrameExtendedLengthHighBitSet(t *testing.T) {
	// Header for a 64-bit length with the forbidden high bit set.
	wire := []byte{0x82, 0x7F, 0x80, 0, 0, 0, 0, 0, 0, 0}
	f, consumed, err := parseFrame(wire)
	assert.Nil(t, f)
	assert.Zero(t, consumed)
	assert.ErrorIs(t, err, ErrExtendedLengthOverflow)
}

// TestParseFrameBoundaryLengths covers the boundary payload lengths the
// conformance suite calls out: 0, 125, 126, 127, 65535, 65536.
func TestParseFrameBoundaryLengths(t *testing.T) {
	for _, n := range []int{0, 125, 126, 127, 65535, 65536} {
		payload := make([]byte, n)
		wire, err := encodeFrame(OpcodeBinary, payload, true, false)
		require.NoError(t, err)

		f, consumed, err := parseFrame(wire)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, len(wire), consumed)
		assert.Len(t, f.payload, n)
	}
}

func TestParseFrameAccumulatesAcrossCalls(t *testing.T) {
	wire := []byte{0x81, 0x85, 0x37, 0xFA, 0x21, 0x3D, 0x7F, 0x9F, 0x4D, 0x51, 0x58}

	// Feed one byte at a time; only the final call should produce a frame.
	var buf []byte
	for i, b := range wire {
		buf = append(buf, b)
		f, consumed, err := parseFrame(buf)
		require.NoError(t, err)
		if i < len(wire)-1 {
			assert.Nil(t, f)
			assert.Zero(t, consumed)
		} else {
			require.NotNil(t, f)
			assert.Equal(t, "Hello", string(f.payload))
		}
	}
}

func TestApplyMaskIsInvolution(t *testing.T) {
	key := [4]byte{0x12, 0x34, 0x56, 0x78}
	original := []byte("the quick brown fox jumps over the lazy dog 0123456789")

	data := append([]byte(nil), original...)
	applyMask(data, key)
	assert.NotEqual(t, original, data)

	applyMask(data, key)
	assert.Equal(t, original, data)
}

func TestEncodeFrameUnmasked(t *testing.T) {
	wire, err := encodeFrame(OpcodeText, []byte("hi"), true, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x81, 0x02, 'h', 'i'}, wire)
}

func TestEncodeFrameMaskedRoundTrips(t *testing.T) {
	wire, err := encodeFrame(OpcodeText, []byte("hi"), true, true)
	require.NoError(t, err)

	f, consumed, err := parseFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	assert.True(t, f.masked)
	assert.Equal(t, "hi", string(f.payload))
}
