package handlers

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"yamdb/internal/apperrors"
	"yamdb/internal/auth"
	"yamdb/internal/models"
	"yamdb/internal/policy"
)

type userView struct {
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Bio       string      `json:"bio"`
	Role      models.Role `json:"role"`
}

func newUserView(u *models.User) userView {
	return userView{
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bio:       u.Bio,
		Role:      u.Role,
	}
}

type userPayload struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Role      *string `json:"role"`
}

// apply validates in and copies the provided fields onto u. The role is
// copied only when allowRole is set; otherwise it is silently dropped.
func (h *Handler) apply(u *models.User, in userPayload, creating, allowRole bool) error {
	errs := apperrors.FieldErrors{}
	if in.Username != nil || creating {
		var v string
		if in.Username != nil {
			v = *in.Username
		}
		auth.ValidateUsername(h.limits, v, errs)
		u.Username = v
	}
	if in.Email != nil || creating {
		var v string
		if in.Email != nil {
			v = *in.Email
		}
		auth.ValidateEmail(h.limits, v, errs)
		u.Email = v
	}
	for field, p := range map[string]*string{"first_name": in.FirstName, "last_name": in.LastName} {
		if p != nil && utf8.RuneCountInString(*p) > h.limits.PersonMax {
			errs.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", h.limits.PersonMax))
		}
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.Role != nil && allowRole {
		role := models.Role(*in.Role)
		if !role.Valid() {
			errs.Add("role", fmt.Sprintf("\"%s\" is not a valid choice.", *in.Role))
		} else {
			u.Role = role
		}
	}
	return errs.Err()
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Users, policy.Read, 0) {
		return
	}
	p, err := h.page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	users, total, err := h.store.ListUsers(r.Context(), r.URL.Query().Get("search"), p.window())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, newUserView(&users[i]))
	}
	out, err := paginate(r, p, total, views)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Users, policy.Write, 0) {
		return
	}
	var in userPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u := &models.User{Role: models.RoleUser}
	if err := h.apply(u, in, true, true); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.CreateUser(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserView(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Users, policy.Read, 0) {
		return
	}
	u, err := h.store.UserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Users, policy.Write, 0) {
		return
	}
	u, err := h.store.UserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.patchUser(w, r, u, true)
}

// DeleteUser removes a user by username. /users/me only supports GET and
// PATCH, so DELETE on it is rejected once the caller is known.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == auth.ReservedUsername {
		if !h.allow(w, r, policy.Profile, policy.Write, 0) {
			return
		}
		w.Header().Set("Allow", "GET, PATCH")
		writeDetail(w, http.StatusMethodNotAllowed, `Method "DELETE" not allowed.`)
		return
	}
	if !h.allow(w, r, policy.Users, policy.Write, 0) {
		return
	}
	if err := h.store.DeleteUser(r.Context(), username); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Profile, policy.Read, 0) {
		return
	}
	writeJSON(w, http.StatusOK, newUserView(currentUser(r)))
}

// UpdateMe edits the caller's profile. A role change from a non-admin is
// ignored while the rest of the update applies.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Profile, policy.Write, 0) {
		return
	}
	me := *currentUser(r)
	h.patchUser(w, r, &me, policy.CanChangeRole(actor(r)))
}

func (h *Handler) patchUser(w http.ResponseWriter, r *http.Request, u *models.User, allowRole bool) {
	var in userPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.apply(u, in, false, allowRole); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

type signupPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Signup registers a user, or re-sends the code for a known pair, and
// echoes the submitted pair.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.flow.Signup(r.Context(), in.Username, in.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signupPayload{Username: u.Username, Email: u.Email})
}

type tokenPayload struct {
	Username         string `json:"username"`
	ConfirmationCode string `json:"confirmation_code"`
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var in tokenPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.flow.Exchange(r.Context(), in.Username, in.ConfirmationCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
