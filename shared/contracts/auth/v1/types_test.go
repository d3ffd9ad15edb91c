package v1

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeRequest_Valid(t *testing.T) {
	t.Parallel()

	req, err := DecodeRequest([]byte(`{"type":"Login","username":"alice","password":"pw1"}`))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	login, ok := req.(Login)
	if !ok || login.Username != "alice" || login.Password != "pw1" {
		t.Fatalf("got %#v, want Login{alice, pw1}", req)
	}

	req, err = DecodeRequest([]byte(`{"type":"Logout"}`))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if _, ok := req.(Logout); !ok {
		t.Fatalf("got %#v, want Logout", req)
	}

	req, err = DecodeRequest([]byte(`{"type":"RefreshToken","token":"abc"}`))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	rt, ok := req.(RefreshToken)
	if !ok || rt.Token != "abc" {
		t.Fatalf("got %#v, want RefreshToken{abc}", req)
	}
}

func TestDecodeRequest_EmptyFieldsArePresent(t *testing.T) {
	t.Parallel()

	// Present-but-empty fields decode; the session layer decides what an
	// empty username means.
	req, err := DecodeRequest([]byte(`{"type":"Login","username":"","password":""}`))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if _, ok := req.(Login); !ok {
		t.Fatalf("got %#v, want Login", req)
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{name: "empty input", in: ``},
		{name: "not json", in: `hello`},
		{name: "number", in: `17`},
		{name: "array", in: `[{"type":"Logout"}]`},
		{name: "no type", in: `{"username":"alice"}`},
		{name: "non-string type", in: `{"type":7}`},
		{name: "unknown type", in: `{"type":"Ping"}`},
		{name: "login missing password", in: `{"type":"Login","username":"alice"}`},
		{name: "login missing username", in: `{"type":"Login","password":"pw"}`},
		{name: "refresh missing token", in: `{"type":"RefreshToken"}`},
		{name: "login non-string field", in: `{"type":"Login","username":1,"password":"pw"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeRequest([]byte(tc.in)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("DecodeRequest(%q) err=%v, want ErrMalformed", tc.in, err)
			}
		})
	}
}

func TestResponse_Encode(t *testing.T) {
	t.Parallel()

	exp := time.Unix(1700000000, 0)

	cases := []struct {
		name string
		resp Response
		want string
	}{
		{name: "success", resp: Success("tok", exp), want: `{"type":"Success","token":"tok","expires_at":1700000000}`},
		{name: "registered", resp: Registered("tok", exp), want: `{"type":"Registered","token":"tok","expires_at":1700000000}`},
		{name: "invalid request", resp: InvalidRequest(), want: `{"type":"InvalidRequest"}`},
		{name: "invalid token", resp: InvalidToken(), want: `{"type":"InvalidToken"}`},
		{name: "invalid password", resp: InvalidPassword(), want: `{"type":"InvalidPassword"}`},
		{name: "logged out", resp: LoggedOut(), want: `{"type":"LoggedOut"}`},
		{name: "not logged in", resp: NotLoggedIn(), want: `{"type":"NotLoggedIn"}`},
		{name: "already authorized", resp: AlreadyAuthorized("alice"), want: `{"type":"AlreadyAuthorized","username":"alice"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := string(tc.resp.Encode()); got != tc.want {
				t.Fatalf("Encode()=%s want %s", got, tc.want)
			}
		})
	}
}
