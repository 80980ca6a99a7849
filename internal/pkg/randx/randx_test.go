package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	req := require.New(t)

	id := ID()

	req.True(IsValidID(id))
	req.NotEqual(id, ID())
	req.False(IsValidID("not-an-id"))
	req.False(IsValidID(""))
}

func TestSuffix(t *testing.T) {
	req := require.New(t)

	s, err := Suffix()

	req.NoError(err)
	req.Len(s, SuffixLength)
	for _, r := range s {
		req.True(strings.ContainsRune(Base62Chars, r))
	}
}
