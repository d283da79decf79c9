package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
)

// Taxonomy names one of the slug-keyed lookup tables.
type Taxonomy string

const (
	Categories Taxonomy = "categories"
	Genres     Taxonomy = "genres"
)

func (t Taxonomy) notFound() error {
	if t == Categories {
		return apperrors.NotFound("category not found")
	}
	return apperrors.NotFound("genre not found")
}

// CreateTerm inserts a category or genre and returns its id.
func (s *Store) CreateTerm(ctx context.Context, t Taxonomy, n models.Named) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO `+string(t)+`(name,slug) VALUES(?,?)`, n.Name, n.Slug)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return 0, apperrors.Conflict("slug", "An entry with this slug already exists.")
		}
		return 0, err
	}
	return res.LastInsertId()
}

// ListTerms lists a taxonomy by name descending, optionally filtered by a
// name substring.
func (s *Store) ListTerms(ctx context.Context, t Taxonomy, search string, page Page) ([]models.Named, int, error) {
	where := ""
	var args []any
	if search != "" {
		where = ` WHERE name LIKE ? ESCAPE '\'`
		args = append(args, likePattern(search))
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(t)+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := page.clause()
	rows, err := s.db.QueryContext(ctx, `SELECT name, slug FROM `+string(t)+where+` ORDER BY name DESC, id`+limit,
		append(args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []models.Named{}
	for rows.Next() {
		var n models.Named
		if err := rows.Scan(&n.Name, &n.Slug); err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

// TermBySlug resolves a slug to its id and fields.
func (s *Store) TermBySlug(ctx context.Context, t Taxonomy, slug string) (int64, models.Named, error) {
	var id int64
	n := models.Named{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM `+string(t)+` WHERE slug = ?`, slug).Scan(&id, &n.Name, &n.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, n, t.notFound()
	}
	return id, n, err
}

// RenameTerm changes the display name; the slug is immutable.
func (s *Store) RenameTerm(ctx context.Context, t Taxonomy, slug, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE `+string(t)+` SET name = ? WHERE slug = ?`, name, slug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return t.notFound()
	}
	return nil
}

// DeleteTerm removes a category (with its titles) or a genre (with its
// title links only).
func (s *Store) DeleteTerm(ctx context.Context, t Taxonomy, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+string(t)+` WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return t.notFound()
	}
	return nil
}

// TitleWrite carries the stored columns of a title.
type TitleWrite struct {
	Name        string
	Year        int
	Description string
	CategoryID  int64
	GenreIDs    []int64
}

// TitleFilter narrows ListTitles. Zero values are ignored.
type TitleFilter struct {
	Category string
	Genre    string
	Year     int
	Name     string
}

func linkGenres(ctx context.Context, q querier, titleID int64, genreIDs []int64) error {
	for _, gid := range genreIDs {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO title_genres(title_id,genre_id) VALUES(?,?)`, titleID, gid); err != nil {
			return err
		}
	}
	return nil
}

// CreateTitle inserts a title and its genre links atomically.
func (s *Store) CreateTitle(ctx context.Context, w TitleWrite) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, `INSERT INTO titles(name,year,description,category_id) VALUES(?,?,?,?)`,
			w.Name, w.Year, w.Description, w.CategoryID)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return linkGenres(ctx, q, id, w.GenreIDs)
	})
	return id, err
}

// UpdateTitle rewrites the title columns; genre links are replaced only
// when replaceGenres is set.
func (s *Store) UpdateTitle(ctx context.Context, id int64, w TitleWrite, replaceGenres bool) error {
	return s.withTx(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, `UPDATE titles SET name=?, year=?, description=?, category_id=? WHERE id=?`,
			w.Name, w.Year, w.Description, w.CategoryID, id)
		if err != nil {
			return err
		}
		if err := expectRow(res, "title not found"); err != nil {
			return err
		}
		if !replaceGenres {
			return nil
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM title_genres WHERE title_id = ?`, id); err != nil {
			return err
		}
		return linkGenres(ctx, q, id, w.GenreIDs)
	})
}

// DeleteTitle removes a title with its genre links, reviews and comments.
func (s *Store) DeleteTitle(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM titles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(res, "title not found")
}

const titleSelect = `SELECT t.id, t.name, t.year, t.description, c.id, c.name, c.slug,
	(SELECT AVG(r.score) FROM reviews r WHERE r.title_id = t.id)
	FROM titles t JOIN categories c ON c.id = t.category_id`

func scanTitle(row interface{ Scan(...any) error }) (*models.Title, error) {
	t := &models.Title{Genres: []models.Genre{}}
	var rating sql.NullFloat64
	err := row.Scan(&t.ID, &t.Name, &t.Year, &t.Description,
		&t.Category.ID, &t.Category.Name, &t.Category.Slug, &rating)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := rating.Float64
		t.Rating = &v
	}
	return t, nil
}

// TitleByID loads a title with its category, genres and rating.
func (s *Store) TitleByID(ctx context.Context, id int64) (*models.Title, error) {
	t, err := scanTitle(s.db.QueryRowContext(ctx, titleSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("title not found")
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachGenres(ctx, []*models.Title{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// TitleExists reports whether a title with id exists.
func (s *Store) TitleExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM titles WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

// ListTitles returns titles ordered by name descending with the unpaged total.
func (s *Store) ListTitles(ctx context.Context, f TitleFilter, page Page) ([]models.Title, int, error) {
	var wheres []string
	var args []any
	if f.Category != "" {
		wheres = append(wheres, "c.slug = ?")
		args = append(args, f.Category)
	}
	if f.Genre != "" {
		wheres = append(wheres, `EXISTS(SELECT 1 FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
			WHERE tg.title_id = t.id AND g.slug = ?)`)
		args = append(args, f.Genre)
	}
	if f.Year != 0 {
		wheres = append(wheres, "t.year = ?")
		args = append(args, f.Year)
	}
	if f.Name != "" {
		wheres = append(wheres, "t.name = ?")
		args = append(args, f.Name)
	}
	where := ""
	if len(wheres) > 0 {
		where = " WHERE " + strings.Join(wheres, " AND ")
	}

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles t JOIN categories c ON c.id = t.category_id`+where, args...).
		Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	limit, largs := page.clause()
	rows, err := s.db.QueryContext(ctx, titleSelect+where+` ORDER BY t.name DESC, t.id`+limit, append(args, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	var list []*models.Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()

	if err := s.attachGenres(ctx, list); err != nil {
		return nil, 0, err
	}
	out := make([]models.Title, 0, len(list))
	for _, t := range list {
		out = append(out, *t)
	}
	return out, total, nil
}

// attachGenres loads the genres of every title in one query. Rows of the
// title query must be closed before calling it.
func (s *Store) attachGenres(ctx context.Context, titles []*models.Title) error {
	if len(titles) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Title, len(titles))
	marks := make([]string, 0, len(titles))
	args := make([]any, 0, len(titles))
	for _, t := range titles {
		byID[t.ID] = t
		marks = append(marks, "?")
		args = append(args, t.ID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tg.title_id, g.id, g.name, g.slug
		FROM title_genres tg JOIN genres g ON g.id = tg.genre_id
		WHERE tg.title_id IN (`+strings.Join(marks, ",")+`) ORDER BY g.name`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tid int64
		var g models.Genre
		if err := rows.Scan(&tid, &g.ID, &g.Name, &g.Slug); err != nil {
			return err
		}
		if t, ok := byID[tid]; ok {
			t.Genres = append(t.Genres, g)
		}
	}
	return rows.Err()
}
