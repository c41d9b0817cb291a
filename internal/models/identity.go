package models

// Role is the authorization role carried by an authenticated identity.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// Identity is the public profile snapshot stored in a session.
// It is copied from the user row when the session is created or refreshed and
// is not kept in sync with later edits to that row.
type Identity struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
	Active    bool   `json:"active"`
}

// IsAdmin returns true if the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
