package lookup

import (
	"context"
	"fmt"
	"net"
)

// DNSResolver maps host names to a single IP address.
type DNSResolver struct {
	r *net.Resolver
}

// NewDNSResolver uses the system resolver when r is nil.
func NewDNSResolver(r *net.Resolver) *DNSResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNSResolver{r: r}
}

// Resolve returns the first IPv4 address of host, or its first address when
// it has no IPv4 record. Literal IPs are returned unchanged.
func (d *DNSResolver) Resolve(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	addrs, err := d.r.LookupIPAddr(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, ErrNoResult)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return addrs[0].IP.String(), nil
}
