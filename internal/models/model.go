package models

import "time"

// Role is a user's moderation role.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Bio       string
	Role      Role
	Superuser bool
	CreatedAt time.Time
}

// IsAdmin treats superusers as admins.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Superuser
}

func (u *User) IsModerator() bool {
	return u.Role == RoleModerator
}

// Named holds the fields shared by categories and genres.
type Named struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Category struct {
	ID int64 `json:"-"`
	Named
}

type Genre struct {
	ID int64 `json:"-"`
	Named
}

// Title is a catalogued work. Rating is derived from reviews and is nil
// when the title has none.
type Title struct {
	ID          int64
	Name        string
	Year        int
	Description string
	Category    Category
	Genres      []Genre
	Rating      *float64
}

// Publication holds the fields shared by reviews and comments.
type Publication struct {
	Text    string
	PubDate time.Time
}

type Review struct {
	ID       int64
	TitleID  int64
	AuthorID int64
	Author   string
	Score    int
	Publication
}

type Comment struct {
	ID       int64
	ReviewID int64
	AuthorID int64
	Author   string
	Publication
}
