// Package auth authenticates callers of the tasks API and assigns each
// caller a scope that decides whether it may mutate tasks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Method identifies how a caller was authenticated.
type Method string

const (
	// MethodNone means authentication is disabled.
	MethodNone Method = "none"
	// MethodBasic is HTTP Basic authentication.
	MethodBasic Method = "basic"
	// MethodAPIKey is X-API-Key header authentication.
	MethodAPIKey Method = "apikey"
	// MethodMulti tries Basic and API key authentication in turn.
	MethodMulti Method = "multi"
)

// Scope limits what an authenticated caller may do.
type Scope string

const (
	// ScopeRead allows listing and reading tasks only.
	ScopeRead Scope = "read"
	// ScopeWrite allows every operation, including mutations.
	ScopeWrite Scope = "write"
)

// ParseScope parses a scope name. Empty means write.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeWrite:
		return ScopeWrite, nil
	case ScopeRead:
		return ScopeRead, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Identity is the authenticated caller.
type Identity struct {
	Method  Method
	Subject string
	Scope   Scope
}

// CanWrite reports whether the identity may mutate tasks.
func (i *Identity) CanWrite() bool {
	return i != nil && i.Scope == ScopeWrite
}

// Authenticator validates a request and returns the caller identity.
type Authenticator interface {
	Authenticate(r *http.Request) (*Identity, error)
	Method() Method
}

// Sentinel errors for authentication failures.
var (
	ErrUnauthenticated    = errors.New("unauthenticated: no credentials provided")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrForbidden          = errors.New("read-only credentials cannot modify tasks")
	ErrUnknownMethod      = errors.New("unknown auth method")
)

// ParseMethod parses an auth mode name. Empty means none.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodNone, nil
	case MethodNone, MethodBasic, MethodAPIKey, MethodMulti:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

type contextKey string

const identityKey contextKey = "identity"

// FromContext retrieves the caller identity from the context.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// WithIdentity stores the caller identity in the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// credential is one parsed "name:secret[:scope]" entry.
type credential struct {
	name   string
	secret string
	scope  Scope
}

// parseCredentials splits a comma separated list of "first:second[:scope]"
// entries. The returned credentials carry first as name and second as
// secret; callers swap them when their format is "secret:name".
func parseCredentials(kind, config string) ([]credential, error) {
	trimmed := strings.TrimSpace(config)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: config must not be empty", kind)
	}

	var creds []credential
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("%s: invalid entry format, expected a:b[:scope]", kind)
		}

		first := strings.TrimSpace(parts[0])
		second := strings.TrimSpace(parts[1])
		if first == "" || second == "" {
			return nil, fmt.Errorf("%s: entry fields must not be empty", kind)
		}

		scope := ScopeWrite
		if len(parts) == 3 {
			s, err := ParseScope(parts[2])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			scope = s
		}

		creds = append(creds, credential{name: first, secret: second, scope: scope})
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("%s: no valid entries found", kind)
	}
	return creds, nil
}
