// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package namesrv discovers cluster topology: it resolves name-server
// addresses, queries them for topic routes with failover, and caches the
// resulting routes.
package namesrv

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultDomain is the discovery endpoint queried by the HTTP resolver
// when no custom domain is configured.
const DefaultDomain = "http://jmenv.tbsite.net:8080/rocketmq/nsaddr"

// EnvVar is the environment variable the env resolver reads, holding a
// `;`-separated address list.
const EnvVar = "NAMESRV_ADDR"

// Resolver produces the current list of name-server addresses.
type Resolver interface {
	Resolve() ([]string, error)
	Description() string
}

// StaticResolver returns a fixed address list.
type StaticResolver struct {
	addrs []string
}

// NewStaticResolver builds a resolver over a fixed list.
func NewStaticResolver(addrs []string) *StaticResolver {
	return &StaticResolver{addrs: addrs}
}

func (r *StaticResolver) Resolve() ([]string, error) {
	return append([]string(nil), r.addrs...), nil
}

func (r *StaticResolver) Description() string { return "static resolver" }

// EnvResolver reads addresses from the NAMESRV_ADDR environment variable.
type EnvResolver struct{}

func (EnvResolver) Resolve() ([]string, error) {
	return splitAddrs(os.Getenv(EnvVar)), nil
}

func (EnvResolver) Description() string { return "envvar resolver" }

// PassthroughResolver returns its configured list when non-empty and
// delegates to a fallback otherwise.
type PassthroughResolver struct {
	addrs    []string
	fallback Resolver
}

// NewPassthroughResolver wraps a fixed list with a fallback resolver.
func NewPassthroughResolver(addrs []string, fallback Resolver) *PassthroughResolver {
	return &PassthroughResolver{addrs: addrs, fallback: fallback}
}

func (r *PassthroughResolver) Resolve() ([]string, error) {
	if len(r.addrs) > 0 {
		return append([]string(nil), r.addrs...), nil
	}
	return r.fallback.Resolve()
}

func (r *PassthroughResolver) Description() string { return "passthrough resolver" }

// HTTPResolver fetches the `;`-separated address list from a discovery
// URL, falling back to the environment on failure.
type HTTPResolver struct {
	domain   string
	http     *resty.Client
	fallback Resolver
}

// NewHTTPResolver builds an HTTP resolver against the default discovery
// domain.
func NewHTTPResolver() *HTTPResolver {
	return NewHTTPResolverWithDomain(DefaultDomain)
}

// NewHTTPResolverWithDomain builds an HTTP resolver against a custom
// discovery URL.
func NewHTTPResolverWithDomain(domain string) *HTTPResolver {
	return &HTTPResolver{
		domain:   domain,
		http:     resty.New().SetTimeout(10 * time.Second),
		fallback: EnvResolver{},
	}
}

func (r *HTTPResolver) Resolve() ([]string, error) {
	resp, err := r.http.R().Get(r.domain)
	if err == nil && resp.IsSuccess() {
		if addrs := splitAddrs(string(resp.Body())); len(addrs) > 0 {
			return addrs, nil
		}
	}
	addrs, ferr := r.fallback.Resolve()
	if ferr != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("%w: discovery at %s failed (%v)", ErrNoNameServers, r.domain, err)
	}
	return addrs, nil
}

func (r *HTTPResolver) Description() string { return "http resolver" }

func splitAddrs(s string) []string {
	var addrs []string
	for _, addr := range strings.Split(s, ";") {
		addr = strings.TrimSpace(addr)
		addr = strings.TrimPrefix(addr, "https://")
		addr = strings.TrimPrefix(addr, "http://")
		if addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
