// Copyright 2019 Cytomine.
// This software is released under an MIT/X11 open source license.

package cytomine

import "fmt"

// User is a human account on the server.
type User struct {
	Entity `mapstructure:",squash"`

	Username  string `mapstructure:"username"`
	Firstname string `mapstructure:"firstname"`
	Lastname  string `mapstructure:"lastname"`
	Email     string `mapstructure:"email"`
	Algo      bool   `mapstructure:"algo"`
}

func (u *User) Kind() string { return "user" }

func (u *User) CallbackKeys() []string { return []string{"user"} }

type UserCollection struct {
	Collection `mapstructure:",squash"`
}

func NewUserCollection() *UserCollection {
	col := &UserCollection{}
	col.init("user", func() Model { return &User{} }, "project", "ontology")
	return col
}

func (c *UserCollection) Users() []*User {
	out := make([]*User, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*User)
	}
	return out
}

// CurrentUser is the identity owning the session credentials.  For a
// job-scoped identity Algo is true and Job names the running job.
type CurrentUser struct {
	User `mapstructure:",squash"`

	Job        int64 `mapstructure:"job"`
	AdminByNow bool  `mapstructure:"adminByNow"`
	GuestByNow bool  `mapstructure:"guestByNow"`
}

func (u *CurrentUser) URI() (string, error) {
	return "user/current.json", nil
}

// UserJob is the algorithmic identity created for one job run; it
// carries its own API key pair.
type UserJob struct {
	Entity `mapstructure:",squash"`

	Username   string `mapstructure:"username"`
	PublicKey  string `mapstructure:"publicKey"`
	PrivateKey string `mapstructure:"privateKey"`
	Job        int64  `mapstructure:"job"`
	User       int64  `mapstructure:"user"`
}

func (u *UserJob) Kind() string { return "userJob" }

func (u *UserJob) CallbackKeys() []string {
	return []string{"userJob", "userjob"}
}

// Role is one of the fixed server-side security roles.
type Role struct {
	Entity `mapstructure:",squash"`

	Authority string `mapstructure:"authority"`
}

func (r *Role) Kind() string { return "role" }

func (r *Role) CallbackKeys() []string { return []string{"role"} }

type RoleCollection struct {
	Collection `mapstructure:",squash"`
}

func NewRoleCollection() *RoleCollection {
	col := &RoleCollection{}
	col.init("role", func() Model { return &Role{} })
	return col
}

func (c *RoleCollection) Roles() []*Role {
	out := make([]*Role, len(c.data))
	for i, m := range c.data {
		out[i] = m.(*Role)
	}
	return out
}

// UserRole grants a role to a user.  It is a keyless link resource
// addressed through a user-scoped path; the server does not always
// return an identifier for it.
type UserRole struct {
	Entity `mapstructure:",squash"`

	User int64 `mapstructure:"user"`
	Role int64 `mapstructure:"role"`
}

func NewUserRole(user, role int64) *UserRole {
	return &UserRole{User: user, Role: role}
}

func (ur *UserRole) Kind() string { return "secusersecrole" }

func (ur *UserRole) CallbackKeys() []string {
	return []string{"secusersecrole", "userrole"}
}

func (ur *UserRole) URI() (string, error) {
	if ur.User == 0 || ur.Role == 0 {
		return "", ErrNoID
	}
	return fmt.Sprintf("user/%d/role/%d.json", ur.User, ur.Role), nil
}

func (ur *UserRole) saveURI() (string, error) {
	if ur.User == 0 {
		return "", ErrNoID
	}
	return fmt.Sprintf("user/%d/role.json", ur.User), nil
}
