package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKeyStrategy(t *testing.T) {
	cases := []struct {
		in      string
		want    KeyStrategy
		wantErr bool
	}{
		{"", KeyStrategyGlobal, false},
		{"global", KeyStrategyGlobal, false},
		{" IP ", KeyStrategyIP, false},
		{"session", "", true},
	}
	for _, tc := range cases {
		got, err := ParseKeyStrategy(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestGlobalStrategyIgnoresAddress(t *testing.T) {
	require.Equal(t, GlobalKey, KeyStrategyGlobal.CallerKey("192.0.2.1:1234"))
}

func TestIPKeyIPv4(t *testing.T) {
	key, ok := IPKey("192.0.2.10:5555")
	require.True(t, ok)
	require.Equal(t, "ip:192.0.2.10", key)

	bare, ok := IPKey("192.0.2.10")
	require.True(t, ok)
	require.Equal(t, key, bare)
}

func TestIPKeyGroupsIPv6ByNetwork(t *testing.T) {
	a, ok := IPKey("[2001:db8:1:2:3:4:5:6]:443")
	require.True(t, ok)
	b, ok := IPKey("2001:db8:1:2:ffff::1")
	require.True(t, ok)
	c, ok := IPKey("2001:db8:1:3::1")
	require.True(t, ok)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestIPKeyRejectsGarbage(t *testing.T) {
	_, ok := IPKey("")
	require.False(t, ok)
	_, ok = IPKey("not-an-ip:80")
	require.False(t, ok)

	require.Equal(t, GlobalKey, KeyStrategyIP.CallerKey("not-an-ip"))
}
