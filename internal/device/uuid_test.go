package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// 16-bit UUID formats
		{
			name:     "16-bit UUID lowercase",
			input:    "2902",
			expected: "2902",
		},
		{
			name:     "16-bit UUID with 0x prefix",
			input:    "0x2902",
			expected: "2902",
		},
		{
			name:     "16-bit UUID with 0X prefix uppercase",
			input:    "0X2A19",
			expected: "2a19",
		},

		// Bluetooth SIG base UUID format (should extract 16-bit form)
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "00002902-0000-1000-8000-00805f9b34fb",
			expected: "2902",
		},
		{
			name:     "Full Bluetooth SIG UUID uppercase",
			input:    "0000180D-0000-1000-8000-00805F9B34FB",
			expected: "180d",
		},

		// Custom 128-bit UUIDs (should NOT be shortened)
		{
			name:     "motor service UUID with dashes",
			input:    "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
			expected: "4fafc2011fb5459e8fccc5c9c331914b",
		},
		{
			name:     "motor characteristic UUID uppercase",
			input:    "BEB5483E-36E1-4688-B7F5-EA07361B26A8",
			expected: "beb5483e36e14688b7f5ea07361b26a8",
		},
		{
			name:     "braced UUID",
			input:    "{4fafc201-1fb5-459e-8fcc-c5c9c331914b}",
			expected: "4fafc2011fb5459e8fccc5c9c331914b",
		},
		{
			name:     "Custom UUID - wrong prefix",
			input:    "AA002902-0000-1000-8000-00805f9b34fb",
			expected: "aa00290200001000800000805f9b34fb",
		},
		{
			name:     "surrounding whitespace",
			input:    "  180f ",
			expected: "180f",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestEqualUUID(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"same dashed form", "4fafc201-1fb5-459e-8fcc-c5c9c331914b", "4fafc201-1fb5-459e-8fcc-c5c9c331914b", true},
		{"dashed vs compact", "4fafc201-1fb5-459e-8fcc-c5c9c331914b", "4fafc2011fb5459e8fccc5c9c331914b", true},
		{"case insensitive", "BEB5483E-36E1-4688-B7F5-EA07361B26A8", "beb5483e-36e1-4688-b7f5-ea07361b26a8", true},
		{"short vs SIG base", "180f", "0000180f-0000-1000-8000-00805f9b34fb", true},
		{"different UUIDs", "180f", "180d", false},
		// Substring containment is not equality
		{"prefix only", "4fafc201", "4fafc201-1fb5-459e-8fcc-c5c9c331914b", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, EqualUUID(tt.a, tt.b))
		})
	}
}

func TestValidateUUID(t *testing.T) {
	t.Run("normalizes valid UUIDs", func(t *testing.T) {
		got, err := ValidateUUID("180F", "4fafc201-1fb5-459e-8fcc-c5c9c331914b")
		require.NoError(t, err)
		assert.Equal(t, []string{"180f", "4fafc2011fb5459e8fccc5c9c331914b"}, got)
	})

	t.Run("rejects empty list", func(t *testing.T) {
		_, err := ValidateUUID()
		require.Error(t, err)
	})

	t.Run("rejects empty entry", func(t *testing.T) {
		_, err := ValidateUUID("180f", "")
		require.ErrorContains(t, err, "index 1")
	})

	t.Run("rejects non-hex entry", func(t *testing.T) {
		_, err := ValidateUUID("zz-top")
		require.ErrorContains(t, err, "invalid UUID format")
	})
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "4fafc201", ShortenUUID("4fafc2011fb5459e8fccc5c9c331914b"))
	assert.Equal(t, "180f", ShortenUUID("180f"))
}
