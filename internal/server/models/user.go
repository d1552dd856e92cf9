// Package models defines server-side data models persisted in the database.
package models

import (
	"database/sql"
	"time"
)

// Role is the access level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Gender is an optional self-declared attribute. The empty value means unset.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

// Valid reports whether g is unset or one of the known values.
func (g Gender) Valid() bool {
	switch g {
	case "", GenderFemale, GenderMale, GenderOther:
		return true
	}
	return false
}

// TokenKind selects which stored digest a token is checked against.
type TokenKind string

const (
	TokenRemember   TokenKind = "remember"
	TokenActivation TokenKind = "activation"
	TokenReset      TokenKind = "reset"
)

// User is a row of the users table. It only holds digests; plaintext
// passwords and tokens never live here.
type User struct {
	ID               string
	Name             string
	Email            string
	PasswordDigest   string
	Role             Role
	Gender           Gender
	RememberDigest   sql.NullString
	Activated        bool
	ActivationDigest sql.NullString
	ActivatedAt      sql.NullTime
	ResetDigest      sql.NullString
	ResetSentAt      sql.NullTime
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Digest returns the stored digest for kind, or "" when none is stored.
func (u *User) Digest(kind TokenKind) string {
	var d sql.NullString
	switch kind {
	case TokenRemember:
		d = u.RememberDigest
	case TokenActivation:
		d = u.ActivationDigest
	case TokenReset:
		d = u.ResetDigest
	}
	if !d.Valid {
		return ""
	}
	return d.String
}
