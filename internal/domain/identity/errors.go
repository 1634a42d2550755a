package identity

import "errors"

var (
	// ErrAuthentication means the credential was missing or matched no identity.
	ErrAuthentication = errors.New("authentication failed")
	// ErrAuthorization means the identity is valid but lacks the required role.
	ErrAuthorization = errors.New("insufficient permissions")
)
