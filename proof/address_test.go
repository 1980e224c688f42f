package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRawAddress(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		workchain int32
		wantErr   bool
	}{
		{
			name:      "Basechain",
			raw:       testRawAddress,
			workchain: 0,
		},
		{
			name:      "Masterchain",
			raw:       "-1:3f5cf3a2b9f29f9e6d8f0e5c7a1b2c3d4e5f60718293a4b5c6d7e8f901234567",
			workchain: -1,
		},
		{name: "Missing separator", raw: "0x123", wantErr: true},
		{name: "Short hash", raw: "0:abcdef", wantErr: true},
		{name: "Non-hex hash", raw: "0:zz5cf3a2b9f29f9e6d8f0e5c7a1b2c3d4e5f60718293a4b5c6d7e8f901234567", wantErr: true},
		{name: "Non-numeric workchain", raw: "base:3f5cf3a2b9f29f9e6d8f0e5c7a1b2c3d4e5f60718293a4b5c6d7e8f901234567", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseRawAddress(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.workchain, addr.Workchain)
			assert.Equal(t, tc.raw, addr.String())
		})
	}
}
