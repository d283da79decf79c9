package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"yamdb/internal/apperrors"
	"yamdb/internal/config"
	mailer "yamdb/internal/mail"
	"yamdb/internal/models"
)

// ReservedUsername cannot be registered because /users/me addresses the caller.
const ReservedUsername = "me"

// UserStore is the identity storage the registration flow needs.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	SetConfirmation(ctx context.Context, userID int64, hash string, expires time.Time) error
	Confirmation(ctx context.Context, userID int64) (string, time.Time, error)
	ConsumeConfirmation(ctx context.Context, userID int64, hash string) (bool, error)
}

// Flow runs signup and token exchange.
type Flow struct {
	users   UserStore
	tokens  *Manager
	mail    mailer.Sender
	from    string
	codeTTL time.Duration
	limits  config.Limits
	log     *log.Logger
	now     func() time.Time
}

func NewFlow(users UserStore, tokens *Manager, sender mailer.Sender, from string, codeTTL time.Duration, limits config.Limits, logger *log.Logger) *Flow {
	return &Flow{
		users:   users,
		tokens:  tokens,
		mail:    sender,
		from:    from,
		codeTTL: codeTTL,
		limits:  limits,
		log:     logger,
		now:     time.Now,
	}
}

// ValidateUsername checks the username rules shared by signup and user
// management.
func ValidateUsername(limits config.Limits, username string, errs apperrors.FieldErrors) {
	switch {
	case username == "":
		errs.Add("username", "This field is required.")
	case utf8.RuneCountInString(username) > limits.UsernameMax:
		errs.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", limits.UsernameMax))
	case username == ReservedUsername:
		errs.Add("username", "You cannot use \"me\" as username.")
	case !limits.ValidUsername(username):
		errs.Add("username", "Enter a valid username. Letters, digits and @/./+/-/_ only.")
	}
}

// ValidateEmail checks address syntax and length.
func ValidateEmail(limits config.Limits, email string, errs apperrors.FieldErrors) {
	switch {
	case email == "":
		errs.Add("email", "This field is required.")
	case utf8.RuneCountInString(email) > limits.EmailMax:
		errs.Add("email", fmt.Sprintf("Ensure this field has no more than %d characters.", limits.EmailMax))
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			errs.Add("email", "Enter a valid email address.")
		}
	}
}

// Signup registers username+email, or finds the existing pending user for
// the same pair, and emails a fresh confirmation code.
func (f *Flow) Signup(ctx context.Context, username, email string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	errs := apperrors.FieldErrors{}
	ValidateUsername(f.limits, username, errs)
	ValidateEmail(f.limits, email, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	byName, err := f.lookup(ctx, f.users.UserByUsername, username)
	if err != nil {
		return nil, err
	}
	byEmail, err := f.lookup(ctx, f.users.UserByEmail, email)
	if err != nil {
		return nil, err
	}

	var u *models.User
	switch {
	case byName != nil && byEmail != nil && byName.ID == byEmail.ID:
		u = byName
	case byName == nil && byEmail == nil:
		u = &models.User{Username: username, Email: email, Role: models.RoleUser}
		if err := f.users.CreateUser(ctx, u); err != nil {
			return nil, err
		}
	default:
		conflict := &apperrors.Error{Kind: apperrors.KindConflict, Message: "conflict", Fields: map[string][]string{}}
		if byName != nil {
			conflict.Fields["username"] = []string{"This username is already used with another email."}
		}
		if byEmail != nil {
			conflict.Fields["email"] = []string{"This email is already used with another username."}
		}
		return nil, conflict
	}

	if _, err := f.SendCode(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SendCode stores a new code for u, invalidating any earlier one, and
// emails it. The code is also returned in clear.
func (f *Flow) SendCode(ctx context.Context, u *models.User) (string, error) {
	code, err := f.issueCode(ctx, u)
	if err != nil {
		return "", err
	}
	f.deliver(ctx, u, code)
	return code, nil
}

func (f *Flow) issueCode(ctx context.Context, u *models.User) (string, error) {
	code, hash, err := NewCode()
	if err != nil {
		return "", err
	}
	if err := f.users.SetConfirmation(ctx, u.ID, hash, f.now().Add(f.codeTTL)); err != nil {
		return "", fmt.Errorf("store confirmation code: %w", err)
	}
	return code, nil
}

// deliver sends the code; failures are logged and never reach the caller.
func (f *Flow) deliver(ctx context.Context, u *models.User, code string) {
	m := mailer.Message{
		From:    f.from,
		To:      u.Email,
		Subject: "Confirmation Code",
		Body:    "Your confirmation code is: \n" + code,
	}
	if err := f.mail.Send(ctx, m); err != nil {
		f.log.Printf("send confirmation code to user %d: %v", u.ID, err)
	}
}

// Exchange trades a confirmation code for an access token. The code is
// consumed atomically, so concurrent exchanges of one code yield one token.
func (f *Flow) Exchange(ctx context.Context, username, code string) (string, error) {
	errs := apperrors.FieldErrors{}
	if strings.TrimSpace(username) == "" {
		errs.Add("username", "This field is required.")
	}
	if strings.TrimSpace(code) == "" {
		errs.Add("confirmation_code", "This field is required.")
	}
	if err := errs.Err(); err != nil {
		return "", err
	}

	u, err := f.users.UserByUsername(ctx, username)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", apperrors.Unauthenticated("invalid username or confirmation code")
	}
	if err != nil {
		return "", err
	}
	hash, expires, err := f.users.Confirmation(ctx, u.ID)
	if err != nil {
		return "", err
	}
	if !CheckCode(hash, code) || !f.now().Before(expires) {
		return "", apperrors.Unauthenticated("invalid username or confirmation code")
	}
	consumed, err := f.users.ConsumeConfirmation(ctx, u.ID, hash)
	if err != nil {
		return "", err
	}
	if !consumed {
		return "", apperrors.Unauthenticated("invalid username or confirmation code")
	}
	return f.tokens.Issue(u)
}

func (f *Flow) lookup(ctx context.Context, by func(context.Context, string) (*models.User, error), key string) (*models.User, error) {
	u, err := by(ctx, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return u, err
}
