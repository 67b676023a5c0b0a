package utils

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

var (
	thisNetwork = netip.MustParsePrefix("0.0.0.0/8")
	sharedSpace = netip.MustParsePrefix("100.64.0.0/10")
)

// IsLocalAddr reports whether addr is not publicly routable: loopback,
// private, link-local, unspecified, 0.0.0.0/8 or carrier-grade NAT space.
func IsLocalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		thisNetwork.Contains(addr) ||
		sharedSpace.Contains(addr)
}

// IsLocalNetworkURL reports whether raw points at localhost or resolves to a
// local/private address. A host that cannot be resolved is an error.
func IsLocalNetworkURL(ctx context.Context, resolver Resolver, raw string) (bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return false, fmt.Errorf("url %q has no host", raw)
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return true, nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return IsLocalAddr(addr), nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if IsLocalAddr(addr) {
			return true, nil
		}
	}
	return false, nil
}
