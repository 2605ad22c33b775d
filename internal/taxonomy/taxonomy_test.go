package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel_ExactAlias(t *testing.T) {
	canon, orig, conf := NormalizeLabel("PT")
	require.Equal(t, "part-timer", canon)
	require.Equal(t, "PT", orig)
	require.Equal(t, 0.99, conf)
}

func TestNormalizeLabel_TokenizedAlias(t *testing.T) {
	canon, _, conf := NormalizeLabel("Senior MOE teacher wanted")
	require.Equal(t, "moe-exmoe", canon)
	require.Equal(t, 0.9, conf)
}

func TestNormalizeLabel_Unknown(t *testing.T) {
	canon, _, conf := NormalizeLabel("pet groomer")
	require.Equal(t, "unknown", canon)
	require.Equal(t, 0.0, conf)
}

func TestNormalizeLabel_EmptyInput(t *testing.T) {
	canon, orig, conf := NormalizeLabel("   ")
	require.Equal(t, "unknown", canon)
	require.Equal(t, "", orig)
	require.Equal(t, 0.0, conf)
}

func TestNormalizeLabel_ShortAliasIsExactMatch(t *testing.T) {
	canon, _, conf := NormalizeLabel("ft")
	require.Equal(t, "full-timer", canon)
	require.Equal(t, 0.99, conf)
}
