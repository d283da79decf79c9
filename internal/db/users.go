package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
)

const userColumns = `id, username, email, first_name, last_name, bio, role, is_superuser, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Bio, &role, &u.Superuser, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return u, nil
}

func userConflict(err error) error {
	cols, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	for _, c := range cols {
		switch c {
		case "username":
			return apperrors.Conflict("username", "A user with that username already exists.")
		case "email":
			return apperrors.Conflict("email", "A user with that email already exists.")
		}
	}
	return apperrors.Conflict(apperrors.NonFieldErrors, "User already exists.")
}

// CreateUser inserts u and sets its ID and CreatedAt.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username,email,first_name,last_name,bio,role,is_superuser,created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Bio, string(u.Role), u.Superuser, u.CreatedAt)
	if err != nil {
		return userConflict(err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *Store) userBy(ctx context.Context, column string, value any) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user not found")
	}
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userBy(ctx, "username", username)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.userBy(ctx, "email", email)
}

// ListUsers returns users ordered by username, optionally filtered by a
// username substring, together with the unpaged total.
func (s *Store) ListUsers(ctx context.Context, search string, page Page) ([]models.User, int, error) {
	where := ""
	var args []any
	if search != "" {
		where = ` WHERE username LIKE ? ESCAPE '\'`
		args = append(args, likePattern(search))
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := page.clause()
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+where+` ORDER BY username`+limit, append(args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// UpdateUser writes every mutable profile field of u.
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET username=?, email=?, first_name=?, last_name=?, bio=?, role=?
		WHERE id=?`, u.Username, u.Email, u.FirstName, u.LastName, u.Bio, string(u.Role), u.ID)
	if err != nil {
		return userConflict(err)
	}
	return expectRow(res, "user not found")
}

// DeleteUser removes a user with their reviews and comments.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	return expectRow(res, "user not found")
}

// SetConfirmation stores the hash of a freshly issued confirmation code,
// replacing any previous one.
func (s *Store) SetConfirmation(ctx context.Context, userID int64, hash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET confirmation_hash=?, confirmation_expires_at=? WHERE id=?`,
		hash, expires.UTC(), userID)
	if err != nil {
		return err
	}
	return expectRow(res, "user not found")
}

// Confirmation returns the pending code hash of a user. An empty hash means
// no code is pending.
func (s *Store) Confirmation(ctx context.Context, userID int64) (string, time.Time, error) {
	var hash string
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT confirmation_hash, confirmation_expires_at FROM users WHERE id=?`, userID).
		Scan(&hash, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return hash, expires.Time, nil
}

// ConsumeConfirmation clears the pending code only if it still has the
// given hash. It reports false when another exchange consumed it first.
func (s *Store) ConsumeConfirmation(ctx context.Context, userID int64, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET confirmation_hash='', confirmation_expires_at=NULL
		WHERE id=? AND confirmation_hash=? AND confirmation_hash<>''`, userID, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func expectRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(notFound)
	}
	return nil
}
