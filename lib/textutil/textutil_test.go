package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	require.Equal(t, "Black Ops 3", Clean("Black%20Ops%203"))
	require.Equal(t, "a b", Clean("  a \t\n b  "))
	require.Equal(t, Clean("Black%20Ops"), Clean(Clean("Black%20Ops")))
}

func TestTitleCase(t *testing.T) {
	require.Equal(t, "Call Of Duty", TitleCase("CALL OF DUTY"))
	require.Equal(t, "Doom Eternal", TitleCase("DOOM ETERNAL"))
}

func TestCleanAll(t *testing.T) {
	out := CleanAll([]string{" Action ", "", "  ", "RPG"}, 1, 51)
	require.Equal(t, []string{"Action", "RPG"}, out)

	out = CleanAll([]string{string(make([]rune, 0))}, 1, 51)
	require.Empty(t, out)
}
