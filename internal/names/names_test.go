package names

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain_AdjectiveNounNumber(t *testing.T) {
	for i := 0; i < 20; i++ {
		d := Domain()
		parts := strings.Split(d, "-")
		if assert.Len(t, parts, 3, d) {
			assert.Contains(t, adjectives, parts[0])
			assert.Contains(t, nouns, parts[1])
			n, err := strconv.Atoi(parts[2])
			assert.NoError(t, err, d)
			assert.True(t, n >= 0 && n < domainSuffixes, d)
		}
		assert.Equal(t, d, NormalizeDomain(d))
	}
}

func TestDomain_RarelyRepeats(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		seen[Domain()] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestKey_LengthAndAlphabet(t *testing.T) {
	k := Key()
	assert.Len(t, k, KeyLength)
	for _, r := range k {
		assert.True(t, strings.ContainsRune(keyAlphabet, r), "unexpected rune %q", r)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  My Site ", "my-site"},
		{"already-fine", "already-fine"},
		{"UPPER", "upper"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), tt.in)
	}
}
