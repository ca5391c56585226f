package domain

// Identity is the subject quotas are charged to: an authenticated user or,
// failing that, the client address.
type Identity struct {
	Key     string `json:"key"`
	UserID  string `json:"user_id,omitempty"`
	IP      string `json:"ip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}
