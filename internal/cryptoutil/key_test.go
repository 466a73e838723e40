package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	hexKey := "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"raw 32 bytes", "12345678901234567890123456789012", false},
		{"lowercase hex", hexKey, false},
		{"uppercase hex", strings.ToUpper(hexKey), false},
		{"empty", "", true},
		{"too short", "short", true},
		{"64 chars not hex", strings.Repeat("g", 64), true},
		{"33 bytes", strings.Repeat("x", 33), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DecodeKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrKeyLength)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestDecodeKey_HexAndRawDiffer(t *testing.T) {
	raw, err := DecodeKey("12345678901234567890123456789012")
	require.NoError(t, err)
	assert.Equal(t, []byte("12345678901234567890123456789012"), raw)

	decoded, err := DecodeKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), decoded[0])
}
