package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, Migrate(conn))
	return New(conn)
}

func seedUser(t *testing.T, s *Store, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedTitle(t *testing.T, s *Store, name string, genres ...string) int64 {
	t.Helper()
	ctx := context.Background()
	catID, _, err := s.TermBySlug(ctx, Categories, "books")
	if err != nil {
		catID, err = s.CreateTerm(ctx, Categories, models.Named{Name: "Books", Slug: "books"})
		require.NoError(t, err)
	}
	var ids []int64
	for _, g := range genres {
		id, _, err := s.TermBySlug(ctx, Genres, g)
		if err != nil {
			id, err = s.CreateTerm(ctx, Genres, models.Named{Name: g, Slug: g})
			require.NoError(t, err)
		}
		ids = append(ids, id)
	}
	id, err := s.CreateTitle(ctx, TitleWrite{Name: name, Year: 2000, CategoryID: catID, GenreIDs: ids})
	require.NoError(t, err)
	return id
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))
}

func TestCreateUserConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	err := s.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	e, _ := apperrors.As(err)
	assert.Contains(t, e.Fields, "username")

	err = s.CreateUser(ctx, &models.User{Username: "bob", Email: "alice@example.com"})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	e, _ = apperrors.As(err)
	assert.Contains(t, e.Fields, "email")
}

func TestUserLookupAndUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	assert.Equal(t, models.RoleUser, u.Role)

	got, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got.Bio = "reader"
	got.Role = models.RoleModerator
	require.NoError(t, s.UpdateUser(ctx, got))

	again, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "reader", again.Bio)
	assert.Equal(t, models.RoleModerator, again.Role)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListUsersSearch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"carol", "alice", "alfred", "bob"} {
		seedUser(t, s, n)
	}

	users, total, err := s.ListUsers(ctx, "al", Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, users, 1)
	assert.Equal(t, "alfred", users[0].Username)

	users, total, err = s.ListUsers(ctx, "", Page{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, users, 4)
}

func TestConfirmationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")

	hash, _, err := s.Confirmation(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, hash)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, s.SetConfirmation(ctx, u.ID, "h1", exp))
	hash, gotExp, err := s.Confirmation(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", hash)
	assert.True(t, gotExp.Equal(exp))

	ok, err := s.ConsumeConfirmation(ctx, u.ID, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ConsumeConfirmation(ctx, u.ID, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
	hash, _, err = s.Confirmation(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, hash)

	ok, err = s.ConsumeConfirmation(ctx, u.ID, "h1")
	require.NoError(t, err)
	assert.False(t, ok, "a code is consumed once")
}

func TestTermsCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTerm(ctx, Genres, models.Named{Name: "Drama", Slug: "drama"})
	require.NoError(t, err)
	_, err = s.CreateTerm(ctx, Genres, models.Named{Name: "Comedy", Slug: "comedy"})
	require.NoError(t, err)

	_, err = s.CreateTerm(ctx, Genres, models.Named{Name: "Again", Slug: "drama"})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	list, total, err := s.ListTerms(ctx, Genres, "", Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []models.Named{{Name: "Drama", Slug: "drama"}, {Name: "Comedy", Slug: "comedy"}}, list)

	list, _, err = s.ListTerms(ctx, Genres, "med", Page{})
	require.NoError(t, err)
	assert.Equal(t, []models.Named{{Name: "Comedy", Slug: "comedy"}}, list)

	require.NoError(t, s.RenameTerm(ctx, Genres, "drama", "Tragedy"))
	_, n, err := s.TermBySlug(ctx, Genres, "drama")
	require.NoError(t, err)
	assert.Equal(t, "Tragedy", n.Name)

	require.NoError(t, s.DeleteTerm(ctx, Genres, "drama"))
	assert.ErrorIs(t, s.DeleteTerm(ctx, Genres, "drama"), apperrors.ErrNotFound)
	_, _, err = s.TermBySlug(ctx, Categories, "drama")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTitleReadsNestCategoryGenresAndRating(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune", "scifi", "classic")

	title, err := s.TitleByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "books", title.Category.Slug)
	require.Len(t, title.Genres, 2)
	assert.Equal(t, "classic", title.Genres[0].Slug)
	assert.Nil(t, title.Rating)

	alice, bob := seedUser(t, s, "alice"), seedUser(t, s, "bob")
	require.NoError(t, s.CreateReview(ctx, &models.Review{TitleID: id, AuthorID: alice.ID, Score: 7, Publication: models.Publication{Text: "ok"}}))
	require.NoError(t, s.CreateReview(ctx, &models.Review{TitleID: id, AuthorID: bob.ID, Score: 10, Publication: models.Publication{Text: "great"}}))

	title, err = s.TitleByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, title.Rating)
	assert.InDelta(t, 8.5, *title.Rating, 1e-9)

	_, err = s.TitleByID(ctx, id+100)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListTitlesFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedTitle(t, s, "Alpha", "drama")
	seedTitle(t, s, "Beta", "comedy")
	seedTitle(t, s, "Gamma", "drama", "comedy")

	list, total, err := s.ListTitles(ctx, TitleFilter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "Gamma", list[0].Name)

	list, total, err = s.ListTitles(ctx, TitleFilter{Genre: "drama"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Gamma", list[0].Name)
	assert.Len(t, list[0].Genres, 2)

	list, _, err = s.ListTitles(ctx, TitleFilter{Name: "Beta", Category: "books", Year: 2000}, Page{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Beta", list[0].Name)

	_, total, err = s.ListTitles(ctx, TitleFilter{Year: 1999}, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	list, total, err = s.ListTitles(ctx, TitleFilter{}, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Alpha", list[0].Name)
}

func TestUpdateTitleGenres(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune", "scifi")
	title, err := s.TitleByID(ctx, id)
	require.NoError(t, err)

	w := TitleWrite{Name: "Dune Messiah", Year: 1969, CategoryID: title.Category.ID}
	require.NoError(t, s.UpdateTitle(ctx, id, w, false))
	title, err = s.TitleByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", title.Name)
	assert.Len(t, title.Genres, 1)

	require.NoError(t, s.UpdateTitle(ctx, id, w, true))
	title, err = s.TitleByID(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, title.Genres)

	assert.ErrorIs(t, s.UpdateTitle(ctx, id+1, w, false), apperrors.ErrNotFound)
}

func TestDuplicateReviewIsConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune")
	alice := seedUser(t, s, "alice")

	r := &models.Review{TitleID: id, AuthorID: alice.ID, Score: 5, Publication: models.Publication{Text: "meh"}}
	require.NoError(t, s.CreateReview(ctx, r))

	err := s.CreateReview(ctx, &models.Review{TitleID: id, AuthorID: alice.ID, Score: 9, Publication: models.Publication{Text: "again"}})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	r.Score = 9
	require.NoError(t, s.UpdateReview(ctx, r))
	got, err := s.ReviewByID(ctx, id, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Score)
	assert.Equal(t, "alice", got.Author)
}

func TestUniqueConstraintBacksReviewRule(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune")
	alice := seedUser(t, s, "alice")
	now := time.Now().UTC()

	insert := `INSERT INTO reviews(title_id,author_id,text,score,pub_date) VALUES(?,?,?,?,?)`
	_, err := s.db.ExecContext(ctx, insert, id, alice.ID, "one", 5, now)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, insert, id, alice.ID, "two", 6, now)
	require.Error(t, err)

	cols, ok := uniqueViolation(err)
	require.True(t, ok)
	assert.Equal(t, []string{"author_id", "title_id"}, cols)

	_, ok = uniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestReviewScopedToTitle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	dune := seedTitle(t, s, "Dune")
	emma := seedTitle(t, s, "Emma")
	alice := seedUser(t, s, "alice")
	r := &models.Review{TitleID: dune, AuthorID: alice.ID, Score: 5, Publication: models.Publication{Text: "x"}}
	require.NoError(t, s.CreateReview(ctx, r))

	_, err := s.ReviewByID(ctx, emma, r.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteReview(ctx, emma, r.ID), apperrors.ErrNotFound)
}

func TestCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune", "scifi")
	other := seedTitle(t, s, "Emma", "scifi")
	alice := seedUser(t, s, "alice")

	r := &models.Review{TitleID: id, AuthorID: alice.ID, Score: 5, Publication: models.Publication{Text: "x"}}
	require.NoError(t, s.CreateReview(ctx, r))
	c := &models.Comment{ReviewID: r.ID, AuthorID: alice.ID, Publication: models.Publication{Text: "y"}}
	require.NoError(t, s.CreateComment(ctx, c))

	// genre removal keeps the titles
	require.NoError(t, s.DeleteTerm(ctx, Genres, "scifi"))
	title, err := s.TitleByID(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, title.Genres)

	// title removal takes reviews and comments
	require.NoError(t, s.DeleteTitle(ctx, id))
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&n))
	assert.Zero(t, n)

	// category removal takes its titles
	require.NoError(t, s.DeleteTerm(ctx, Categories, "books"))
	_, total, err := s.ListTitles(ctx, TitleFilter{}, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCommentsCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune")
	alice := seedUser(t, s, "alice")
	r := &models.Review{TitleID: id, AuthorID: alice.ID, Score: 5, Publication: models.Publication{Text: "x"}}
	require.NoError(t, s.CreateReview(ctx, r))

	for _, text := range []string{"first", "second"} {
		require.NoError(t, s.CreateComment(ctx, &models.Comment{ReviewID: r.ID, AuthorID: alice.ID, Publication: models.Publication{Text: text}}))
	}
	list, total, err := s.ListComments(ctx, r.ID, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "first", list[0].Text)

	c := list[1]
	c.Text = "edited"
	require.NoError(t, s.UpdateComment(ctx, &c))
	got, err := s.CommentByID(ctx, r.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Text)

	require.NoError(t, s.DeleteComment(ctx, r.ID, c.ID))
	_, err = s.CommentByID(ctx, r.ID, c.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteUserCascadesFeedback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := seedTitle(t, s, "Dune")
	alice := seedUser(t, s, "alice")
	require.NoError(t, s.CreateReview(ctx, &models.Review{TitleID: id, AuthorID: alice.ID, Score: 5, Publication: models.Publication{Text: "x"}}))

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	_, total, err := s.ListReviews(ctx, id, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), apperrors.ErrNotFound)
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "yamdb.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	// no idle pool, so each query dials a fresh connection
	conn.SetMaxIdleConns(0)

	for i := 0; i < 2; i++ {
		var on int
		require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
		assert.Equal(t, 1, on)
	}
}
