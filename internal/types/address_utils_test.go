package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEVMAddress(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain hex", "0x00000000000000000000000000000000000000aa", false},
		{"no prefix", "00000000000000000000000000000000000000aa", false},
		{"surrounding space", "  0x00000000000000000000000000000000000000aa ", false},
		{"left padded word", "0x00000000000000000000000000000000000000000000000000000000000000aa", false},
		{"dirty padding", "0x01000000000000000000000000000000000000000000000000000000000000aa", true},
		{"not hex", "0xzz000000000000000000000000000000000000aa", true},
		{"too short", "0xaa", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToEVMAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestFormatAddress(t *testing.T) {
	addr := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", FormatAddress(addr))
}

func TestOutcomes(t *testing.T) {
	ev := ValidatedEvent{Nonce: uint256.NewInt(42), Amount: uint256.NewInt(1)}

	accepted := Accepted(ev)
	assert.Equal(t, OutcomeAccepted, accepted.Kind)
	assert.Equal(t, "42", accepted.Nonce)
	require.NotNil(t, accepted.Event)

	dup := Duplicate("42")
	assert.Equal(t, "duplicate", dup.Kind.String())
	assert.Nil(t, dup.Event)

	bad := Malformed("amount", "missing")
	assert.Equal(t, OutcomeMalformed, bad.Kind)
	var malformedErr *MalformedEventError
	require.ErrorAs(t, bad.Err, &malformedErr)
	assert.Equal(t, "amount", malformedErr.Field)

	assert.Equal(t, "unknown", OutcomeKind(9).String())
}
