package models

import (
	"strings"
	"time"
)

// Account represents one mailbox imported from a credential line
type Account struct {
	ID               uint64    `json:"id"`
	Email            string    `json:"email"`
	MailboxPassword  string    `json:"mailbox_password"`
	RecoveryEmail    string    `json:"recovery_email,omitempty"`
	RecoveryPassword string    `json:"recovery_password,omitempty"`
	RefreshToken     string    `json:"refresh_token"`
	ClientID         string    `json:"client_id"`
	Login            string    `json:"user_login"`
	PasswordHash     string    `json:"user_password_hash"`
	DisplayName      string    `json:"display_name"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// Name returns the display name, falling back to the local part of the address
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return LocalPart(a.Email)
}

// AccountUpdate carries the administrative fields an admin may change.
// Nil fields are left untouched.
type AccountUpdate struct {
	Login       *string `json:"userLogin"`
	Password    *string `json:"userPassword"`
	Active      *bool   `json:"active"`
	DisplayName *string `json:"displayName"`
}

// AccountStats summarizes the store for the admin dashboard
type AccountStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// LocalPart returns the part of an address before '@'
func LocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}
