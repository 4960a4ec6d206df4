package models

import "time"

// Role is the authorization level attached to a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analista"
)

// DefaultRole is assigned when a user record carries no role.
const DefaultRole = RoleAnalyst

// ParseRole validates a role name. An empty string yields DefaultRole.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "":
		return DefaultRole, true
	case RoleAdmin, RoleAnalyst:
		return Role(s), true
	}
	return "", false
}

// User is a stored identity in the usuarios collection.
type User struct {
	ID        string    `json:"id"         bson:"-"`
	Username  string    `json:"username"   bson:"username"`
	Password  string    `json:"-"          bson:"password"` // never serialize
	Role      Role      `json:"role"       bson:"role"`
	CreatedAt time.Time `json:"created_at" bson:"created_at,omitempty"`
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	EncryptedUser string `json:"encryptedUser"`
	EncryptedPass string `json:"encryptedPass"`
	CaptchaToken  string `json:"g-recaptcha-response"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Role Role `json:"role"`
}
