package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// publicDNS are queried directly when the system resolver cannot resolve the
// relay host.
var publicDNS = []string{
	"1.1.1.1",              // Cloudflare
	"1.0.0.1",              // Cloudflare
	"2606:4700:4700::1111", // Cloudflare
	"8.8.8.8",              // Google
	"8.8.4.4",              // Google
	"2001:4860:4860::8888", // Google
	"9.9.9.9",              // Quad9
	"149.112.112.112",      // Quad9
	"208.67.222.222",       // Cisco OpenDNS
}

var ErrNoAddress = errors.New("no IP addresses found")

// Resolver resolves relay hostnames, falling back to a race across public
// DNS servers when the local resolver fails.
type Resolver struct {
	Servers      []string
	LocalTimeout time.Duration
	RaceTimeout  time.Duration

	dialer net.Dialer
}

// NewResolver returns a resolver using the built-in public server list.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:      publicDNS,
		LocalTimeout: time.Second,
		RaceTimeout:  2 * time.Second,
	}
}

// DialContext resolves the host part of addr and dials the resulting IP. It
// has the signature expected by websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	return r.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// Lookup resolves host to a single IP, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	defer cancel()
	if ip, err := lookupWith(localCtx, &net.Resolver{}, host); err == nil {
		return ip, nil
	}

	return r.race(ctx, host)
}

// race queries every public server at once and takes the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RaceTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := lookupWith(ctx, remoteResolver(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}

	return "", fmt.Errorf("resolve %s: all %d public DNS servers failed", host, len(r.Servers))
}

func remoteResolver(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookupWith(ctx context.Context, res *net.Resolver, host string) (string, error) {
	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}

	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
