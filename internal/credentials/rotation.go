// Package credentials assigns bearer tokens to virtual users.
package credentials

import (
	"errors"
	"strings"
)

// Credential is an opaque bearer token.
type Credential string

// ErrNoCredentials is returned when neither a pool nor a shared token is set.
var ErrNoCredentials = errors.New("no credentials: set token, token_list or token_file")

// Rotation maps VU ordinals onto a fixed credential pool. It is immutable
// after New and safe for concurrent use.
type Rotation struct {
	pool   []Credential
	shared Credential
}

// New builds a Rotation. A non-empty pool takes precedence over shared.
// Blank entries are dropped.
func New(pool []string, shared string) (*Rotation, error) {
	r := &Rotation{shared: Credential(strings.TrimSpace(shared))}
	for _, tok := range pool {
		if tok = strings.TrimSpace(tok); tok != "" {
			r.pool = append(r.pool, Credential(tok))
		}
	}
	if len(r.pool) == 0 && r.shared == "" {
		return nil, ErrNoCredentials
	}
	return r, nil
}

// ForUser returns the credential for a 1-based VU ordinal. The same ordinal
// always yields the same credential.
func (r *Rotation) ForUser(ordinal int) Credential {
	if len(r.pool) == 0 {
		return r.shared
	}
	idx := (ordinal - 1) % len(r.pool)
	if idx < 0 {
		idx += len(r.pool)
	}
	return r.pool[idx]
}

// Len reports the pool size, or 1 for a shared token.
func (r *Rotation) Len() int {
	if len(r.pool) == 0 {
		return 1
	}
	return len(r.pool)
}
