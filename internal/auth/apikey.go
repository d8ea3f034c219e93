package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the HTTP header carrying the API key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator authenticates requests by the X-API-Key header.
type APIKeyAuthenticator struct {
	keys []credential // name holds the key value, secret the key name
}

// NewAPIKeyAuthenticator parses "key:name[:scope]" entries separated by
// commas.
func NewAPIKeyAuthenticator(keysConfig string) (*APIKeyAuthenticator, error) {
	creds, err := parseCredentials("apikey auth", keysConfig)
	if err != nil {
		return nil, err
	}
	return &APIKeyAuthenticator{keys: creds}, nil
}

// Authenticate compares the presented key with every configured key in
// constant time.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	apiKey := r.Header.Get(APIKeyHeader)
	if apiKey == "" {
		return nil, ErrUnauthenticated
	}

	var match *credential
	for i := range a.keys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(a.keys[i].name)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidAPIKey
	}

	return &Identity{Method: MethodAPIKey, Subject: match.secret, Scope: match.scope}, nil
}

// Method returns MethodAPIKey.
func (a *APIKeyAuthenticator) Method() Method {
	return MethodAPIKey
}
