package auth

// User is the caller identity attached to every command. The zero value is
// the anonymous user, which can only invoke public actions.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Anonymous reports whether the user carries no identity.
func (u User) Anonymous() bool {
	return u.ID == ""
}

// HasRole reports whether the user holds the given role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
