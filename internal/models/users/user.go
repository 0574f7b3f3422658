package models

// User is the authenticated caller as carried in the session token.
type User struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayName joins first and last name, falling back to the email.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// AdminUser is a row of the admin users console.
type AdminUser struct {
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Permissions []string `json:"permissions"`
	CreatedAt   int64    `json:"created_at"`
}
