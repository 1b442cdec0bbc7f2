package server

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxies resolves the client address for log lines. The
// service normally sits behind a terminating proxy; forwarding
// headers are honored only when the direct peer is inside one of the
// configured ranges, so an untrusted broker cannot spoof its logged
// address.
type TrustedProxies struct {
	networks []*net.IPNet
}

// NewTrustedProxies creates a TrustedProxies from CIDR strings. Bare
// IPs are accepted as single-address ranges; invalid entries are
// ignored.
func NewTrustedProxies(cidrs []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			if ip := net.ParseIP(cidr); ip != nil {
				if ip.To4() != nil {
					_, network, _ = net.ParseCIDR(ip.String() + "/32")
				} else {
					_, network, _ = net.ParseCIDR(ip.String() + "/128")
				}
			}
		}
		if network != nil {
			tp.networks = append(tp.networks, network)
		}
	}
	return tp
}

// IsTrusted reports whether the IP sits in a trusted range.
func (tp *TrustedProxies) IsTrusted(ip net.IP) bool {
	for _, network := range tp.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client address of a request. Requests from a
// trusted peer may carry it in X-Forwarded-For (first entry) or
// X-Real-IP; everything else uses the connection address.
func (tp *TrustedProxies) ClientIP(r *http.Request) net.IP {
	directIP := parseRemoteAddr(r.RemoteAddr)
	if directIP == nil || !tp.IsTrusted(directIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}
	return directIP
}

// ClientIPString returns the resolved client address for logging.
func (tp *TrustedProxies) ClientIPString(r *http.Request) string {
	ip := tp.ClientIP(r)
	if ip == nil {
		return "unknown"
	}
	return ip.String()
}

// parseRemoteAddr extracts the IP from net/http's "ip:port" form.
func parseRemoteAddr(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.ParseIP(addr)
	}
	return net.ParseIP(host)
}
