package identity

// Role names known to the gateway.
const (
	RoleAdmin  = "admin"
	RoleWorker = "worker"
)

// Identity is the caller record resolved from a credential. It lives for one request.
type Identity struct {
	UserID   string   `json:"user_id"`
	ClientID string   `json:"client_id"`
	Roles    []string `json:"roles"`
	TenantID string   `json:"tenant_id,omitempty"`
}

// HasRole reports whether role is one of the identity's roles.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity carries the privileged admin role.
func (i Identity) IsAdmin() bool { return i.HasRole(RoleAdmin) }
