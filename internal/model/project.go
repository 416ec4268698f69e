package model

import "time"

// Project groups work packages and carries per-project memberships.
// An archived project has Active set to false.
type Project struct {
	ID          int64     `json:"id"`
	Identifier  string    `json:"identifier"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Public      bool      `json:"public"`
	Active      bool      `json:"active"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserStatus is the account state of a user.
type UserStatus string

const (
	UserActive     UserStatus = "active"
	UserLocked     UserStatus = "locked"
	UserRegistered UserStatus = "registered"
)

// IsValid reports whether s is a known user status.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserActive, UserLocked, UserRegistered:
		return true
	}
	return false
}

// User is an account that can own queries and be assigned work.
type User struct {
	ID        int64      `json:"id"`
	Login     string     `json:"login"`
	Firstname string     `json:"firstname"`
	Lastname  string     `json:"lastname"`
	Mail      string     `json:"mail"`
	Admin     bool       `json:"admin"`
	Status    UserStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Name returns the display name of the user.
func (u *User) Name() string {
	switch {
	case u.Firstname == "" && u.Lastname == "":
		return u.Login
	case u.Lastname == "":
		return u.Firstname
	case u.Firstname == "":
		return u.Lastname
	}
	return u.Firstname + " " + u.Lastname
}

// Role is a named set of permissions granted through memberships.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Membership attaches a user to a project with one or more roles.
type Membership struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	UserID    int64     `json:"user_id"`
	RoleIDs   []int64   `json:"role_ids"`
	CreatedAt time.Time `json:"created_at"`
}
