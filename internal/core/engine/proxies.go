package engine

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/seancfoley/ipaddress-go/ipaddr"
)

const (
	forwardedForHeader = "X-Forwarded-For"
	realIPHeader       = "X-Real-IP"
)

// TrustedProxies lists the reverse proxies whose forwarding headers are
// believed. A nil or empty set trusts nobody and every caller is keyed by its
// TCP peer.
type TrustedProxies struct {
	blocks []*ipaddr.IPAddress
}

// ParseTrustedProxies accepts addresses and CIDR blocks such as "10.0.0.0/8".
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		addr, err := ipaddr.NewIPAddressString(entry).ToAddress()
		if err != nil || addr == nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		tp.blocks = append(tp.blocks, addr.ToPrefixBlock())
	}
	return tp, nil
}

// Len reports how many proxy blocks are trusted.
func (tp *TrustedProxies) Len() int {
	if tp == nil {
		return 0
	}
	return len(tp.blocks)
}

func (tp *TrustedProxies) trusts(addr *ipaddr.IPAddress) bool {
	if tp == nil || addr == nil {
		return false
	}
	if addr.IsIPv6() && addr.ToIPv6().IsIPv4Mapped() {
		if v4, err := addr.ToIPv6().GetEmbeddedIPv4Address(); err == nil && v4 != nil {
			addr = v4.ToIP()
		}
	}
	for _, block := range tp.blocks {
		if block.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddress returns the address a request's caller key derives from.
// Forwarding headers count only when the TCP peer is trusted. The
// X-Forwarded-For chain is then read right to left and the first hop that is
// not itself a trusted proxy wins. Malformed chains fall back to the peer.
func (tp *TrustedProxies) ClientAddress(remoteAddr string, header http.Header) string {
	if !tp.trusts(parseHost(remoteAddr)) {
		return remoteAddr
	}

	if values := header.Values(forwardedForHeader); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr := parseHost(hop)
			if addr == nil {
				return remoteAddr
			}
			if !tp.trusts(addr) {
				return hop
			}
		}
		return strings.TrimSpace(hops[0])
	}

	if realIP := strings.TrimSpace(header.Get(realIPHeader)); parseHost(realIP) != nil {
		return realIP
	}
	return remoteAddr
}
