package websocket

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want bool
	}{
		{"empty", nil, true},
		{"ascii", []byte("Hello"), true},
		{"two byte", []byte("café"), true},
		{"three byte", []byte("中文"), true},
		{"four byte (emoji)", []byte("\U0001F600"), true},
		{"truncated two byte sequence", []byte{0xC2}, false},
		{"truncated three byte sequence", []byte{0xE2, 0x82}, false},
		{"invalid continuation byte", []byte{0xC2, 0x00}, false},
		{"five byte sequence", []byte{0xF8, 0x88, 0x80, 0x80, 0x80}, false},
		{"lone continuation byte", []byte{0x80}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validateUTF8(tt.in))
		})
	}
}

// TestValidateUTF8MatchesStdlib cross-checks the hand-rolled DFA against
// unicode/utf8 for single contiguous buffers, where both are defined.
func TestValidateUTF8MatchesStdlib(t *testing.T) {
	samples := [][]byte{
		[]byte("plain ascii"),
		[]byte("résumé"),
		[]byte("日本語"),
		[]byte("\U0001F680 rocket"),
		{0xFF, 0xFE},
		{0xE0, 0x80, 0x80},
	}

	for _, s := range samples {
		assert.Equal(t, utf8.Valid(s), validateUTF8(s), "mismatch for %q", s)
	}
}

// TestValidatorResumesAcrossFragments exercises the property the stdlib
// validator can't: a multibyte sequence split across two step() calls.
func TestValidatorResumesAcrossFragments(t *testing.T) {
	full := []byte("café 中文 \U0001F600")
	require.True(t, utf8.Valid(full))

	for split := 1; split < len(full); split++ {
		var v utf8Validator
		ok1 := v.step(full[:split])
		if !ok1 {
			// The DFA may reject mid-sequence only if the prefix bytes
			// themselves are structurally invalid, never a valid message.
			t.Fatalf("split %d: step on valid prefix rejected", split)
		}
		ok2 := v.step(full[split:])
		require.True(t, ok2, "split %d: second half rejected", split)
		assert.True(t, v.complete(), "split %d: validator did not end on a boundary", split)
	}
}

func TestValidatorRejectsInvalidAcrossFragments(t *testing.T) {
	var v utf8Validator
	assert.True(t, v.step([]byte{0xE2, 0x82})) // first two bytes of a 3-byte sequence
	assert.False(t, v.step([]byte{0x00}))      // invalid continuation byte
}

func TestValidatorIncompleteSequenceAtEnd(t *testing.T) {
	var v utf8Validator
	assert.True(t, v.step([]byte{0xC2})) // dangling lead byte, valid so far
	assert.False(t, v.complete())        // but message ended mid-sequence
}
