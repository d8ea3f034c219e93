package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type basicUser struct {
	hash  string
	scope Scope
}

// BasicAuthenticator authenticates requests using HTTP Basic authentication
// with bcrypt-hashed passwords.
type BasicAuthenticator struct {
	users map[string]basicUser
}

// NewBasicAuthenticator parses "user:bcrypt-hash[:scope]" entries separated
// by commas.
func NewBasicAuthenticator(usersConfig string) (*BasicAuthenticator, error) {
	creds, err := parseCredentials("basic auth", usersConfig)
	if err != nil {
		return nil, err
	}

	users := make(map[string]basicUser, len(creds))
	for _, c := range creds {
		users[c.name] = basicUser{hash: c.secret, scope: c.scope}
	}
	return &BasicAuthenticator{users: users}, nil
}

// Authenticate verifies Basic credentials against the stored bcrypt hash.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	user, exists := a.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", ErrInvalidCredentials)
	}

	return &Identity{Method: MethodBasic, Subject: username, Scope: user.scope}, nil
}

// Method returns MethodBasic.
func (a *BasicAuthenticator) Method() Method {
	return MethodBasic
}
