package services

import (
	"net"
	"strings"
)

type IdentifierKind string

const (
	IdentifierID        IdentifierKind = "id"
	IdentifierSubdomain IdentifierKind = "subdomain"
	IdentifierDomain    IdentifierKind = "domain"
)

// TenantIdentifier is one normalized lookup key derived from request
// metadata.
type TenantIdentifier struct {
	Kind  IdentifierKind
	Value string
}

func (i TenantIdentifier) CacheKey() string {
	return string(i.Kind) + ":" + i.Value
}

// RequestMeta is the slice of an inbound request the resolver inspects.
type RequestMeta struct {
	TenantIDHeader string
	Host           string
}

// Resolver derives a tenant identifier from request metadata.
// Precedence, first match wins: explicit tenant-id header, subdomain of
// the platform base domain, full custom domain. Resolution is pure: no
// store access, no side effects.
type Resolver struct {
	baseDomain        string
	ignoredSubdomains map[string]bool
}

func NewResolver(baseDomain string) *Resolver {
	return &Resolver{
		baseDomain: strings.ToLower(strings.TrimSpace(baseDomain)),
		ignoredSubdomains: map[string]bool{
			"www":   true,
			"api":   true,
			"admin": true,
		},
	}
}

func (r *Resolver) Resolve(meta RequestMeta) (TenantIdentifier, bool) {
	if id := strings.TrimSpace(meta.TenantIDHeader); id != "" {
		return TenantIdentifier{Kind: IdentifierID, Value: id}, true
	}

	host := normalizeHost(meta.Host)
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return TenantIdentifier{}, false
	}

	if sub, ok := r.subdomainOf(host); ok {
		return TenantIdentifier{Kind: IdentifierSubdomain, Value: sub}, true
	}
	if host == r.baseDomain {
		return TenantIdentifier{}, false
	}
	return TenantIdentifier{Kind: IdentifierDomain, Value: host}, true
}

// subdomainOf extracts the tenant label from "<label>.<baseDomain>".
// Reserved labels (www, api, admin) never identify a tenant.
func (r *Resolver) subdomainOf(host string) (string, bool) {
	if r.baseDomain == "" {
		return "", false
	}
	label, ok := strings.CutSuffix(host, "."+r.baseDomain)
	if !ok || label == "" || strings.Contains(label, ".") {
		return "", false
	}
	if r.ignoredSubdomains[label] {
		return "", false
	}
	return label, true
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}
