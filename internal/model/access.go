package model

import (
	"strings"
	"time"
)

// SimpleAccess is the coarsest access verdict: realm-level allow/deny.
type SimpleAccess int

const (
	SimpleAccessAllow SimpleAccess = iota
	SimpleAccessDeny
)

// Privilege distinguishes read access from administrative access.
type Privilege int

const (
	PrivilegeAccess Privilege = iota
	PrivilegeAdmin
	PrivilegeDeny
)

// OnlineAccess governs whether a principal's location/online status is
// visible to another principal.
type OnlineAccess int

const (
	OnlineAccessLocation OnlineAccess = iota
	OnlineAccessOnlineOnly
	OnlineAccessDeny
)

// SubjectKind discriminates the Subject union.
type SubjectKind int

const (
	SubjectPrincipal SubjectKind = iota // a specific principal
	SubjectServer                       // all players on a named server
	SubjectDomain                       // all players on any server under a domain suffix
	SubjectLocalServer                  // all players local to this server
)

// Subject is one of: a specific principal, a server, a domain suffix, or
// "the local server" (spec.md §3 Access rule).
type Subject struct {
	Kind      SubjectKind
	Principal Principal // valid when Kind == SubjectPrincipal
	Server    string    // valid when Kind == SubjectServer
	Domain    string    // valid when Kind == SubjectDomain (a DNS suffix, lowercase)
}

func SubjectFor(p Principal) Subject { return Subject{Kind: SubjectPrincipal, Principal: p} }
func SubjectForServer(server string) Subject {
	return Subject{Kind: SubjectServer, Server: strings.ToLower(server)}
}
func SubjectForDomain(suffix string) Subject {
	return Subject{Kind: SubjectDomain, Domain: strings.ToLower(suffix)}
}
func SubjectForLocal() Subject { return Subject{Kind: SubjectLocalServer} }

// matches reports whether subject s covers principal p, visiting from a
// server whose local name is localServer.
func (s Subject) matches(p Principal, localServer string) bool {
	switch s.Kind {
	case SubjectPrincipal:
		return s.Principal.Equal(p)
	case SubjectServer:
		if p.IsLocal() {
			return strings.EqualFold(s.Server, localServer)
		}
		return strings.EqualFold(s.Server, p.Server)
	case SubjectDomain:
		server := p.Server
		if p.IsLocal() {
			server = localServer
		}
		return strings.HasSuffix(strings.ToLower(server), s.Domain)
	case SubjectLocalServer:
		return p.IsLocal() || strings.EqualFold(p.Server, localServer)
	default:
		return false
	}
}

// Rule is one ordered entry in an AccessList: a subject, an optional
// expiry, and the verdict it carries if matched.
type Rule[V any] struct {
	Subject Subject
	Expiry  *time.Time // nil means "never expires"
	Verdict V
}

// expired reports whether this rule is past its expiry as of now.
func (r Rule[V]) expired(now time.Time) bool {
	return r.Expiry != nil && r.Expiry.Before(now)
}

// AccessList is an ordered rule list plus a default verdict (spec.md §3).
// The zero value has an empty rule list; callers should set Default
// explicitly.
type AccessList[V any] struct {
	Default V
	Rules   []Rule[V]
}

// Check evaluates the list against principal p visiting a server whose own
// name is localServer: the first non-expired matching rule wins, else the
// default verdict is returned.
func (a AccessList[V]) Check(p Principal, localServer string, now time.Time) V {
	for _, rule := range a.Rules {
		if rule.expired(now) {
			continue
		}
		if rule.Subject.matches(p, localServer) {
			return rule.Verdict
		}
	}
	return a.Default
}

// Prune returns a copy of the list with expired rules elided, for
// persistence write-through (spec.md §3: "Expired rules are elided on
// persistence write-through").
func (a AccessList[V]) Prune(now time.Time) AccessList[V] {
	kept := make([]Rule[V], 0, len(a.Rules))
	for _, rule := range a.Rules {
		if !rule.expired(now) {
			kept = append(kept, rule)
		}
	}
	return AccessList[V]{Default: a.Default, Rules: kept}
}
