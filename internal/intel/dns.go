package intel

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

const dnsTimeout = 5 * time.Second

// Resolver answers A/AAAA and NS questions against one configured upstream.
// Domain enrichment uses it to attach resolved addresses and nameservers.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns nil when no upstream is configured, which disables
// DNS augmentation.
func NewResolver(server string) *Resolver {
	if server == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Timeout: dnsTimeout},
	}
}

// Lookup resolves the domain's addresses and authoritative nameservers.
func (r *Resolver) Lookup(ctx context.Context, domain string) (ips, nameservers []string, err error) {
	fqdn := dns.Fqdn(domain)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answers, err := r.query(ctx, fqdn, qtype)
		if err != nil {
			return nil, nil, err
		}
		for _, rr := range answers {
			switch a := rr.(type) {
			case *dns.A:
				ips = append(ips, a.A.String())
			case *dns.AAAA:
				ips = append(ips, a.AAAA.String())
			}
		}
	}

	answers, err := r.query(ctx, fqdn, dns.TypeNS)
	if err != nil {
		return nil, nil, err
	}
	for _, rr := range answers {
		if ns, ok := rr.(*dns.NS); ok {
			nameservers = append(nameservers, strings.TrimSuffix(ns.Ns, "."))
		}
	}

	sort.Strings(ips)
	sort.Strings(nameservers)
	return ips, nameservers, nil
}

func (r *Resolver) query(ctx context.Context, fqdn string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, dserrors.External("intel.dns", "dns", err)
	}
	if resp.Rcode == dns.RcodeNameError {
		// NXDOMAIN is an answer, not a failure.
		return nil, nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, dserrors.External("intel.dns", "dns",
			dserrors.ErrExternalService).WithStatusCode(resp.Rcode)
	}
	return resp.Answer, nil
}
