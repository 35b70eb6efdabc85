package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "datamarket/pkg/domain"
	dErrors "datamarket/pkg/domain-errors"
)

func TestParseAccountID(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		account, err := id.ParseAccountID("  SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7 ")
		require.NoError(t, err)
		assert.Equal(t, id.AccountID("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"), account)
		assert.False(t, account.IsZero())
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := id.ParseAccountID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseRecordID(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want id.RecordID
		ok   bool
	}{
		{name: "valid", raw: "42", want: 42, ok: true},
		{name: "trimmed", raw: " 7 ", want: 7, ok: true},
		{name: "zero rejected", raw: "0"},
		{name: "negative rejected", raw: "-1"},
		{name: "not a number", raw: "abc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := id.ParseRecordID(tc.raw)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
