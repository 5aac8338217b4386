package domain

import (
	"errors"
	"time"
)

const (
	RoleStudent = "student"
	RoleDevice  = "device"
	RoleAdmin   = "admin"
)

var ErrInvalidCredentials = errors.New("invalid credentials")
var ErrUserNotFound = errors.New("user not found")
var ErrUserExists = errors.New("user already exists")
var ErrForbidden = errors.New("access forbidden")

// User models an authenticated actor. The attendance core only ever reads ID,
// DisplayName and Email; the rest belongs to the auth provider.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one the auth provider can issue.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleDevice, RoleAdmin:
		return true
	}
	return false
}
