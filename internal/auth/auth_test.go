package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		target  string
		want    string
		wantErr error
	}{
		{name: "header", header: "Bearer abc", target: "/", want: "abc"},
		{name: "scheme is case insensitive", header: "bearer abc", target: "/", want: "abc"},
		{name: "trims whitespace", header: "Bearer   abc  ", target: "/", want: "abc"},
		{name: "query fallback", target: "/tty?access_token=xyz", want: "xyz"},
		{name: "header wins over query", header: "Bearer abc", target: "/tty?access_token=xyz", want: "abc"},
		{name: "missing", target: "/", wantErr: ErrNoCredentials},
		{name: "wrong scheme", header: "Basic abc", target: "/", wantErr: ErrMalformed},
		{name: "no token", header: "Bearer", target: "/", wantErr: ErrMalformed},
		{name: "blank token", header: "Bearer   ", target: "/", wantErr: ErrNoCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := BearerToken(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyringLookup(t *testing.T) {
	k := NewKeyring("admin", []TokenConfig{
		{Token: "viewer", Scopes: []string{ScopeProcsRO, " ", "jobs:ro"}},
		{Token: "operator", Scopes: []string{ScopeTTYRW}},
		{Token: "", Scopes: []string{ScopeAll}},
	})

	p, ok := k.Lookup("admin")
	require.True(t, ok)
	assert.Equal(t, "api_key", p.Name)
	assert.True(t, p.Can(GrantAll))

	p, ok = k.Lookup("viewer")
	require.True(t, ok)
	assert.Equal(t, "tokens[0]", p.Name)
	assert.True(t, p.Can(GrantProcs))
	assert.False(t, p.Can(GrantEvents))
	assert.False(t, p.Can(GrantProcs|GrantTTYRead), "every bit is required")

	p, ok = k.Lookup("operator")
	require.True(t, ok)
	assert.True(t, p.Can(GrantTTYRead), "rw implies ro")
	assert.True(t, p.Can(GrantTTYWrite))

	_, ok = k.Lookup("nope")
	assert.False(t, ok)
	_, ok = k.Lookup("")
	assert.False(t, ok, "an empty configured token never matches")

	_, ok = NewKeyring("", nil).Lookup("")
	assert.False(t, ok)
}

func TestParseScope(t *testing.T) {
	g, ok := ParseScope(" events:ro ")
	require.True(t, ok)
	assert.Equal(t, GrantEvents, g)

	assert.True(t, KnownScope(ScopeAll))
	assert.False(t, KnownScope("jobs:ro"))
}

func TestPrincipalContext(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, ok := FromContext(r.Context())
	assert.False(t, ok)

	ctx := WithPrincipal(r.Context(), Principal{Name: "tokens[1]", Grants: GrantEvents})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tokens[1]", p.Name)
}
