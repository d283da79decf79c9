// Package policy decides whether an actor may perform an action on a
// resource. Every rule is a pure function looked up by resource.
package policy

import "yamdb/internal/models"

// Action is the HTTP-style action category.
type Action int

const (
	Read Action = iota
	Write
)

// Resource identifies a guarded collection.
type Resource int

const (
	Category Resource = iota
	Genre
	Title
	Review
	Comment
	Users
	Profile
)

// Decision is the outcome of a check.
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

// Actor is the caller as seen by the policy. The zero value is anonymous.
type Actor struct {
	Authenticated bool
	UserID        int64
	Admin         bool
	Moderator     bool
}

// ActorFor builds an actor from a loaded user; nil yields the anonymous actor.
func ActorFor(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{Authenticated: true, UserID: u.ID, Admin: u.IsAdmin(), Moderator: u.IsModerator()}
}

func (a Actor) admin() bool {
	return a.Authenticated && a.Admin
}

func (a Actor) moderator() bool {
	return a.Authenticated && a.Moderator
}

// ownerNone marks a check without a target object.
const ownerNone int64 = 0

type rule func(a Actor, act Action, owner int64) Decision

var rules = map[Resource]rule{
	Category: readOrAdmin,
	Genre:    readOrAdmin,
	Title:    readOrAdmin,
	Review:   readOrAuthorOrStaff,
	Comment:  readOrAuthorOrStaff,
	Users:    adminOnly,
	Profile:  authenticated,
}

// Check evaluates the rule for res. owner is the id of the author of the
// target object, or zero for collection-level checks.
func Check(a Actor, res Resource, act Action, owner int64) Decision {
	r, ok := rules[res]
	if !ok {
		return Forbidden
	}
	return r(a, act, owner)
}

// CanChangeRole reports whether a may set the role field of any user.
func CanChangeRole(a Actor) bool {
	return a.admin()
}

func readOrAdmin(a Actor, act Action, _ int64) Decision {
	if act == Read {
		return Allow
	}
	return requireAdmin(a)
}

func adminOnly(a Actor, _ Action, _ int64) Decision {
	return requireAdmin(a)
}

func authenticated(a Actor, _ Action, _ int64) Decision {
	if !a.Authenticated {
		return Unauthenticated
	}
	return Allow
}

// readOrAuthorOrStaff allows creation to any authenticated actor; changes
// to an existing object need its author, a moderator or an admin.
func readOrAuthorOrStaff(a Actor, act Action, owner int64) Decision {
	if act == Read {
		return Allow
	}
	if !a.Authenticated {
		return Unauthenticated
	}
	if owner == ownerNone || owner == a.UserID || a.moderator() || a.admin() {
		return Allow
	}
	return Forbidden
}

func requireAdmin(a Actor) Decision {
	if !a.Authenticated {
		return Unauthenticated
	}
	if !a.admin() {
		return Forbidden
	}
	return Allow
}
