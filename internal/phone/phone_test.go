package phone

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marifah/voucher-engine/internal/domain"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"national with spaces", "079 111 22 33", "+41791112233"},
		{"international 00 prefix", "0041791112233", "+41791112233"},
		{"plus prefix with spaces", "+41 79 111 22 33", "+41791112233"},
		{"plus prefix compact", "+41794445566", "+41794445566"},
		{"dashes and dots", "079-111.22.33", "+41791112233"},
		{"foreign international", "0033612345678", "+33612345678"},
		{"bare digits no prefix", "791112233", "+791112233"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeSameKeyForAllSpellings(t *testing.T) {
	spellings := []string{"079 111 22 33", "0791112233", "+41791112233", "0041 79 111 22 33"}
	first, err := Normalize(spellings[0])
	require.NoError(t, err)
	for _, s := range spellings[1:] {
		got, err := Normalize(s)
		require.NoError(t, err)
		require.Equal(t, first, got)
	}
}

func TestNormalizeRejectsShortInput(t *testing.T) {
	for _, input := range []string{"", "12345", "  +1 2 ", "abcdef"} {
		_, err := Normalize(input)
		require.ErrorIs(t, err, domain.ErrInvalidPhone, "input %q", input)
	}
}
