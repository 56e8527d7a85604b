package models

import (
	"fmt"
	"strings"
)

// User is a local account of the web application.
type User struct {
	record
	username     string
	passwordHash string
}

// NewUser creates a [User] with the given username and bcrypt hash.
func NewUser(sequence int, username, passwordHash string) *User {
	return &User{record: newRecord(sequence), username: strings.TrimSpace(username), passwordHash: passwordHash}
}

func (u *User) Username() string     { return u.username }
func (u *User) PasswordHash() string { return u.passwordHash }

func (u *User) SetPasswordHash(h string) { u.passwordHash = h }

func (u *User) Validate() error {
	if u.username == "" {
		return fmt.Errorf("username is required")
	}
	if u.passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}
	return nil
}
