package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessorsMatchInfo(t *testing.T) {
	v, c, d := Info()
	require.NotEmpty(t, v)
	require.NotEmpty(t, c)
	require.NotEmpty(t, d)

	require.Equal(t, v, GetVersion())
	require.Equal(t, c, GetCommit())
	require.Equal(t, d, GetDate())
	require.Equal(t, Build{Version: v, Commit: c, Date: d}, Current())
}

func TestString(t *testing.T) {
	s := String()
	require.Contains(t, s, "version="+GetVersion())
	require.Contains(t, s, "commit=")
	require.Contains(t, s, "date=")
}
