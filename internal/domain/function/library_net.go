package function

import (
	"net"

	"github.com/heutelbeck/sapl-go/internal/domain/value"
)

// RegisterNet adds the "net" library, grounded directly on the teacher's
// dest_ip_in_cidr/dest_domain_matches custom CEL functions in
// internal/adapter/outbound/cel/universal_env.go.
func RegisterNet(b *Broker) {
	b.Register(Descriptor{Library: "net", Name: "cidrContains", Arity: 2, Impl: func(a []value.Value) value.Value {
		ipStr, cidrStr, ok := twoTexts(a)
		if !ok {
			return value.Errorf("net.cidrContains requires two text arguments")
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return value.False
		}
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			return value.False
		}
		return value.Boolean(network.Contains(ip))
	}})

	b.Register(Descriptor{Library: "net", Name: "domainMatches", Arity: 2, Impl: func(a []value.Value) value.Value {
		domain, pattern, ok := twoTexts(a)
		if !ok {
			return value.Errorf("net.domainMatches requires two text arguments")
		}
		matched, err := filepathMatch(pattern, domain)
		if err != nil {
			return value.Errorf("net.domainMatches: %v", err)
		}
		return value.Boolean(matched)
	}})
}
