// Package v1 defines the sockauth wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
//
// Every message is a JSON object tagged by a "type" discriminator field.
// Inbound requests are Login, Logout, and RefreshToken; everything else the
// server may emit is a Response.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Request type tags (wire-stable).
const (
	TypeLogin        = "Login"
	TypeLogout       = "Logout"
	TypeRefreshToken = "RefreshToken"
)

// Response type tags (wire-stable).
const (
	TypeSuccess           = "Success"
	TypeRegistered        = "Registered"
	TypeInvalidRequest    = "InvalidRequest"
	TypeInvalidToken      = "InvalidToken"
	TypeInvalidPassword   = "InvalidPassword"
	TypeLoggedOut         = "LoggedOut"
	TypeNotLoggedIn       = "NotLoggedIn"
	TypeAlreadyAuthorized = "AlreadyAuthorized"
)

// ErrMalformed is returned by DecodeRequest for any input that does not
// match one of the known request shapes: invalid JSON, a missing or unknown
// "type" tag, or a missing required field. Callers answer it with an
// InvalidRequest response; it is never fatal to the connection.
var ErrMalformed = errors.New("malformed request")

// Request is the decoded inbound message union: Login, Logout, or
// RefreshToken.
type Request interface {
	requestTag()
}

// Login asks the server to authenticate (or auto-register) a username.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Logout drops the connection's authenticated identity.
type Logout struct{}

// RefreshToken presents a previously issued token as proof of identity.
// It is valid from any session state: the token, not the in-memory session,
// is the portable credential.
type RefreshToken struct {
	Token string `json:"token"`
}

func (Login) requestTag()        {}
func (Logout) requestTag()       {}
func (RefreshToken) requestTag() {}

// DecodeRequest parses one inbound frame into a typed request.
//
// Decoding is strict: the "type" tag must be present and known, and the
// fields the tagged variant requires must be present. Anything else fails
// with ErrMalformed.
func DecodeRequest(data []byte) (Request, error) {
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if probe.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch *probe.Type {
	case TypeLogin:
		var p struct {
			Username *string `json:"username"`
			Password *string `json:"password"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.Username == nil || p.Password == nil {
			return nil, fmt.Errorf("%w: Login requires username and password", ErrMalformed)
		}
		return Login{Username: *p.Username, Password: *p.Password}, nil

	case TypeLogout:
		return Logout{}, nil

	case TypeRefreshToken:
		var p struct {
			Token *string `json:"token"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.Token == nil {
			return nil, fmt.Errorf("%w: RefreshToken requires token", ErrMalformed)
		}
		return RefreshToken{Token: *p.Token}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, *probe.Type)
	}
}

// Response is the outbound message. Token, ExpiresAt, and Username are only
// populated for the variants that carry them; ExpiresAt is unix seconds.
type Response struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Success reports a freshly minted token: password login for a known user,
// refresh, or an unsolicited renewal push.
func Success(token string, expiresAt time.Time) Response {
	return Response{Type: TypeSuccess, Token: token, ExpiresAt: expiresAt.Unix()}
}

// Registered reports a first-time login that auto-registered the username.
func Registered(token string, expiresAt time.Time) Response {
	return Response{Type: TypeRegistered, Token: token, ExpiresAt: expiresAt.Unix()}
}

// InvalidRequest answers a frame that failed to decode.
func InvalidRequest() Response { return Response{Type: TypeInvalidRequest} }

// InvalidToken answers a refresh whose token failed validation.
func InvalidToken() Response { return Response{Type: TypeInvalidToken} }

// InvalidPassword answers a login for a known username with the wrong password.
func InvalidPassword() Response { return Response{Type: TypeInvalidPassword} }

// LoggedOut confirms a logout from an authenticated session.
func LoggedOut() Response { return Response{Type: TypeLoggedOut} }

// NotLoggedIn answers a logout on an anonymous session.
func NotLoggedIn() Response { return Response{Type: TypeNotLoggedIn} }

// AlreadyAuthorized answers a login on an already-authenticated session with
// the identity that session holds.
func AlreadyAuthorized(username string) Response {
	return Response{Type: TypeAlreadyAuthorized, Username: username}
}

// Encode serializes the response to its wire form. Marshaling a Response
// cannot fail; the error path exists only to satisfy encoding/json.
func (r Response) Encode() []byte {
	b, _ := json.Marshal(r)
	return b
}
