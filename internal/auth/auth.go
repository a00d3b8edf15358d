// Package auth maps bearer tokens to the grants they carry on the API.
//
// Tokens come from config: the single api_key is an admin token, and each
// entry of api.auth.tokens lists scope names. Scope names are parsed once,
// when the Keyring is built, into a Grant bit set that handlers check.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scope names accepted in config.
const (
	ScopeAll      = "*"
	ScopeProcsRO  = "procs:ro"
	ScopeEventsRO = "events:ro"
	ScopeTTYRO    = "tty:ro"
	ScopeTTYRW    = "tty:rw"
)

// Grant is a set of API permissions.
type Grant uint8

const (
	GrantProcs Grant = 1 << iota
	GrantEvents
	GrantTTYRead
	GrantTTYWrite

	GrantAll = GrantProcs | GrantEvents | GrantTTYRead | GrantTTYWrite
)

var scopeGrants = map[string]Grant{
	ScopeAll:      GrantAll,
	ScopeProcsRO:  GrantProcs,
	ScopeEventsRO: GrantEvents,
	ScopeTTYRO:    GrantTTYRead,
	// Typing into the terminal is useless without seeing it.
	ScopeTTYRW: GrantTTYRead | GrantTTYWrite,
}

// ParseScope returns the grant named by scope.
func ParseScope(scope string) (Grant, bool) {
	g, ok := scopeGrants[strings.TrimSpace(scope)]
	return g, ok
}

// KnownScope reports whether scope names a grant.
func KnownScope(scope string) bool {
	_, ok := ParseScope(scope)
	return ok
}

// TokenConfig is a bearer token with the scope names it carries.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller.
type Principal struct {
	// Name identifies the matching config entry in logs, never the secret.
	Name   string
	Grants Grant
}

// Can reports whether p holds every permission in g.
func (p Principal) Can(g Grant) bool {
	return p.Grants&g == g
}

type keyEntry struct {
	secret []byte
	who    Principal
}

// Keyring resolves presented tokens to principals.
type Keyring struct {
	keys []keyEntry
}

// NewKeyring builds a keyring from the admin key and scoped tokens. Empty
// secrets are skipped; unknown scope names grant nothing.
func NewKeyring(apiKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{}
	if apiKey != "" {
		k.keys = append(k.keys, keyEntry{secret: []byte(apiKey), who: Principal{Name: "api_key", Grants: GrantAll}})
	}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		var g Grant
		for _, s := range t.Scopes {
			if sg, ok := ParseScope(s); ok {
				g |= sg
			}
		}
		k.keys = append(k.keys, keyEntry{
			secret: []byte(t.Token),
			who:    Principal{Name: fmt.Sprintf("tokens[%d]", i), Grants: g},
		})
	}
	return k
}

// Lookup returns the principal for token. Every entry is compared so the
// time taken does not depend on which one matched.
func (k *Keyring) Lookup(token string) (Principal, bool) {
	if token == "" {
		return Principal{}, false
	}
	presented := []byte(token)
	var found Principal
	matched := 0
	for _, e := range k.keys {
		if subtle.ConstantTimeCompare(presented, e.secret) == 1 && matched == 0 {
			found = e.who
			matched = 1
		}
	}
	return found, matched == 1
}

var (
	ErrNoCredentials = errors.New("missing bearer token")
	ErrMalformed     = errors.New("authorization header is not a bearer token")
)

// BearerToken returns the token from the Authorization header, or from the
// access_token query parameter for clients that cannot set headers
// (EventSource, browser websockets).
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if tok := strings.TrimSpace(r.URL.Query().Get("access_token")); tok != "" {
			return tok, nil
		}
		return "", ErrNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformed
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredentials
	}
	return token, nil
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
