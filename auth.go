package restbase

import "net/http"

// Authenticator attaches credential material to an outgoing request.
// Apply is called once per attempt on a fresh request, so implementations
// must be safe for concurrent use.
type Authenticator interface {
	Apply(req *http.Request) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(req *http.Request) error

// Apply implements the Authenticator interface.
func (f AuthenticatorFunc) Apply(req *http.Request) error {
	return f(req)
}

// BearerAuth sends the token in an Authorization: Bearer header.
type BearerAuth struct {
	Token string
}

// Apply implements the Authenticator interface.
func (a BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements the Authenticator interface.
func (a BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// APIKeyAuth sends the key in an X-API-Key header.
type APIKeyAuth struct {
	Key string
}

// Apply implements the Authenticator interface.
func (a APIKeyAuth) Apply(req *http.Request) error {
	req.Header.Set("X-API-Key", a.Key)
	return nil
}

// QueryTokenAuth appends the token as a query parameter.
type QueryTokenAuth struct {
	Param string
	Token string
}

// Apply implements the Authenticator interface.
func (a QueryTokenAuth) Apply(req *http.Request) error {
	q := req.URL.Query()
	q.Set(a.Param, a.Token)
	req.URL.RawQuery = q.Encode()
	return nil
}
