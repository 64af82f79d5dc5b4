package engine

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "192.0.2.1", "2001:db8::/32"})
	require.NoError(t, err)
	require.Equal(t, 3, proxies.Len())

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	require.Error(t, err)

	var none *TrustedProxies
	require.Equal(t, 0, none.Len())
}

func TestClientAddressWithoutTrustedProxies(t *testing.T) {
	header := http.Header{}
	header.Set("X-Forwarded-For", "198.51.100.1")
	header.Set("X-Real-IP", "198.51.100.2")

	var none *TrustedProxies
	require.Equal(t, "203.0.113.7:5555", none.ClientAddress("203.0.113.7:5555", header))

	empty, err := ParseTrustedProxies(nil)
	require.NoError(t, err)
	require.Equal(t, "203.0.113.7:5555", empty.ClientAddress("203.0.113.7:5555", header))
}

func TestClientAddressBehindTrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		peer   string
		header map[string]string
		want   string
	}{
		{name: "untrusted peer keeps its address", peer: "203.0.113.7:1", header: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "203.0.113.7:1"},
		{name: "single hop", peer: "10.0.0.5:1", header: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "198.51.100.1"},
		{name: "spoofed left entries ignored", peer: "10.0.0.5:1", header: map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.1, 10.9.9.9"}, want: "198.51.100.1"},
		{name: "all hops trusted", peer: "192.0.2.1:1", header: map[string]string{"X-Forwarded-For": "10.1.1.1, 10.2.2.2"}, want: "10.1.1.1"},
		{name: "garbage chain falls back to peer", peer: "10.0.0.5:1", header: map[string]string{"X-Forwarded-For": "unknown"}, want: "10.0.0.5:1"},
		{name: "real ip header", peer: "10.0.0.5:1", header: map[string]string{"X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
		{name: "no headers", peer: "10.0.0.5:1", header: nil, want: "10.0.0.5:1"},
		{name: "ipv4 mapped peer", peer: "[::ffff:10.0.0.5]:1", header: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "198.51.100.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tc.header {
				header.Set(k, v)
			}
			require.Equal(t, tc.want, proxies.ClientAddress(tc.peer, header))
		})
	}
}
