// Package credstore holds the process-wide username registry.
//
// The store starts empty on every process start and is shared by reference
// across all connections. Usernames are case-sensitive exact strings and are
// never deleted. Passwords are stored as Argon2id hashes; the observable
// Created/Verified/Mismatch contract is independent of that representation.
package credstore

import (
	"fmt"
	"sync"

	"sockauth/cmd/security/password"
)

// Outcome classifies a RegisterOrVerify call.
type Outcome int

const (
	// Created means the username was unknown and has been registered.
	Created Outcome = iota
	// Verified means the username was known and the password matched.
	Verified
	// Mismatch means the username was known and the password did not match.
	Mismatch
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Verified:
		return "verified"
	case Mismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Store maps usernames to encoded password hashes.
type Store struct {
	mu     sync.Mutex
	users  map[string]string
	params password.Params
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]string),
		params: password.DefaultParams(),
	}
}

// Lookup returns the stored password hash for username.
func (s *Store) Lookup(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[username]
	return stored, ok
}

// Len reports the number of registered usernames.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

// RegisterOrVerify registers username on first sight and otherwise checks
// pass against the stored hash.
//
// The lookup-then-insert sequence runs under the store lock as one atomic
// step: of two racing first-time logins for the same username, exactly one
// observes Created and the other sees the just-registered password.
func (s *Store) RegisterOrVerify(username, pass string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[username]
	if !ok {
		enc, err := password.Hash(pass, s.params)
		if err != nil {
			return Mismatch, fmt.Errorf("register %q: %w", username, err)
		}
		s.users[username] = enc
		return Created, nil
	}

	match, err := password.Verify(stored, pass)
	if err != nil {
		return Mismatch, fmt.Errorf("verify %q: %w", username, err)
	}
	if !match {
		return Mismatch, nil
	}
	return Verified, nil
}
