package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidCloseCode(t *testing.T) {
	tests := []struct {
		name string
		code uint16
		want bool
	}{
		{"normal closure", 1000, true},
		{"going away", 1001, true},
		{"protocol error", 1002, true},
		{"unsupported data", 1003, true},
		{"reserved 1004", 1004, false},
		{"no status received", 1005, false},
		{"abnormal closure", 1006, false},
		{"invalid payload", 1007, true},
		{"policy violation", 1008, true},
		{"message too big", 1009, true},
		{"mandatory extension", 1010, true},
		{"internal server error", 1011, true},
		{"1012 not in valid set", 1012, false},
		{"reserved 1015 (tls handshake)", 1015, false},
		{"below 1000", 999, false},
		{"application defined low", 3000, true},
		{"application defined high", 4999, true},
		{"above application range", 5000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidCloseCode(tt.code))
		})
	}
}

func TestIsReservedCloseCode(t *testing.T) {
	for _, code := range []uint16{1004, 1005, 1006, 1015} {
		assert.True(t, IsReservedCloseCode(code), "code %d should be reserved", code)
	}
	for _, code := range []uint16{1000, 1003, 3000} {
		assert.False(t, IsReservedCloseCode(code), "code %d should not be reserved", code)
	}
}

func TestCloseCodeString(t *testing.T) {
	assert.Equal(t, "Normal Closure", CloseNormalClosure.String())
	assert.Equal(t, "Application Defined", CloseCode(4000).String())
	assert.Equal(t, "Unknown", CloseCode(50000).String())
}
