package engine

import (
	"fmt"
	"net"
	"strings"

	"github.com/seancfoley/ipaddress-go/ipaddr"
)

// KeyStrategy decides how requests map to caller keys.
type KeyStrategy string

const (
	// KeyStrategyGlobal shares one quota across every caller.
	KeyStrategyGlobal KeyStrategy = "global"
	// KeyStrategyIP gives each client address its own quota. IPv6 clients are
	// grouped by their /64 network.
	KeyStrategyIP KeyStrategy = "ip"

	ipv6GroupBits = 64
)

// ParseKeyStrategy validates a configured strategy name.
func ParseKeyStrategy(value string) (KeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(KeyStrategyGlobal):
		return KeyStrategyGlobal, nil
	case string(KeyStrategyIP):
		return KeyStrategyIP, nil
	default:
		return "", fmt.Errorf("unknown rate limit key strategy %q (expected global or ip)", value)
	}
}

// CallerKey derives the caller key for a request from its remote address.
// Unparseable addresses fall back to GlobalKey.
func (s KeyStrategy) CallerKey(remoteAddr string) string {
	if s != KeyStrategyIP {
		return GlobalKey
	}
	key, ok := IPKey(remoteAddr)
	if !ok {
		return GlobalKey
	}
	return key
}

// IPKey normalizes a host or host:port into a caller key.
func IPKey(remoteAddr string) (string, bool) {
	addr := parseHost(remoteAddr)
	if addr == nil {
		return "", false
	}

	if addr.IsIPv6() {
		if v4 := embeddedIPv4(addr); v4 != "" {
			return "ip:" + v4, true
		}
		return "ip:" + addr.ToPrefixBlockLen(ipv6GroupBits).ToCanonicalString(), true
	}
	return "ip:" + addr.ToCanonicalString(), true
}

// parseHost accepts a bare address, host:port or [v6]:port and returns nil
// for anything that is not an IP address.
func parseHost(value string) *ipaddr.IPAddress {
	host := strings.TrimSpace(value)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return nil
	}

	addr, err := ipaddr.NewIPAddressString(host).ToAddress()
	if err != nil || addr == nil {
		return nil
	}
	return addr
}

func embeddedIPv4(addr *ipaddr.IPAddress) string {
	v6 := addr.ToIPv6()
	if v6 == nil || !v6.IsIPv4Mapped() {
		return ""
	}
	v4, err := v6.GetEmbeddedIPv4Address()
	if err != nil || v4 == nil {
		return ""
	}
	return v4.ToCanonicalString()
}
