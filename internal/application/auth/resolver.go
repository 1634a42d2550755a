package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
)

// Entry binds one pre-shared credential to an identity record.
type Entry struct {
	Credential string
	Identity   identity.Identity
}

type candidate struct {
	digest   [sha256.Size]byte
	identity identity.Identity
}

// Resolver matches credentials against an immutable table built at startup.
// It is safe for concurrent use.
type Resolver struct {
	candidates []candidate
}

// NewResolver builds the table. Entries with an empty credential are dropped
// so an unset secret can never act as a wildcard. Entries without roles are
// rejected.
func NewResolver(entries []Entry) (*Resolver, error) {
	r := &Resolver{}
	for _, e := range entries {
		if strings.TrimSpace(e.Credential) == "" {
			continue
		}
		if len(e.Identity.Roles) == 0 {
			return nil, fmt.Errorf("identity %q has no roles", e.Identity.UserID)
		}
		id := e.Identity
		id.Roles = append([]string(nil), e.Identity.Roles...)
		r.candidates = append(r.candidates, candidate{
			digest:   sha256.Sum256([]byte(e.Credential)),
			identity: id,
		})
	}
	return r, nil
}

// Len returns the number of active credentials.
func (r *Resolver) Len() int { return len(r.candidates) }

// Resolve returns the identity bound to credential. Every candidate is
// compared in constant time over fixed-size digests and the loop never exits
// early, so timing does not reveal how close a guess was.
func (r *Resolver) Resolve(credential string) (identity.Identity, error) {
	if credential == "" {
		return identity.Identity{}, fmt.Errorf("%w: missing credential", identity.ErrAuthentication)
	}
	presented := sha256.Sum256([]byte(credential))

	match := -1
	for i := range r.candidates {
		if subtle.ConstantTimeCompare(presented[:], r.candidates[i].digest[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return identity.Identity{}, fmt.Errorf("%w: invalid credentials", identity.ErrAuthentication)
	}
	id := r.candidates[match].identity
	id.Roles = append([]string(nil), id.Roles...)
	return id, nil
}
