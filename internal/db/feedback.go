package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
)

// DuplicateReviewMessage is returned when an author reviews the
// same title twice.
const DuplicateReviewMessage = "You cannot write more than one review on the same title"

func duplicateReview() error {
	return apperrors.Conflict(apperrors.NonFieldErrors, DuplicateReviewMessage)
}

// CreateReview inserts r unless its author already reviewed the title.
// The UNIQUE(author_id, title_id) constraint settles concurrent inserts.
func (s *Store) CreateReview(ctx context.Context, r *models.Review) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM reviews WHERE author_id = ? AND title_id = ?)`,
		r.AuthorID, r.TitleID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return duplicateReview()
	}

	r.PubDate = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO reviews(title_id,author_id,text,score,pub_date) VALUES(?,?,?,?,?)`,
		r.TitleID, r.AuthorID, r.Text, r.Score, r.PubDate)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return duplicateReview()
		}
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

const reviewSelect = `SELECT r.id, r.title_id, r.author_id, u.username, r.text, r.score, r.pub_date
	FROM reviews r JOIN users u ON u.id = r.author_id`

func scanReview(row interface{ Scan(...any) error }) (*models.Review, error) {
	r := &models.Review{}
	err := row.Scan(&r.ID, &r.TitleID, &r.AuthorID, &r.Author, &r.Text, &r.Score, &r.PubDate)
	return r, err
}

// ReviewByID loads a review that belongs to titleID.
func (s *Store) ReviewByID(ctx context.Context, titleID, id int64) (*models.Review, error) {
	r, err := scanReview(s.db.QueryRowContext(ctx, reviewSelect+` WHERE r.id = ? AND r.title_id = ?`, id, titleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("review not found")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReviews returns the reviews of a title, oldest first.
func (s *Store) ListReviews(ctx context.Context, titleID int64, page Page) ([]models.Review, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE title_id = ?`, titleID).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := page.clause()
	rows, err := s.db.QueryContext(ctx, reviewSelect+` WHERE r.title_id = ? ORDER BY r.pub_date, r.id`+limit,
		append([]any{titleID}, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []models.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// UpdateReview stores new text and score. Uniqueness is not rechecked.
func (s *Store) UpdateReview(ctx context.Context, r *models.Review) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reviews SET text = ?, score = ? WHERE id = ? AND title_id = ?`,
		r.Text, r.Score, r.ID, r.TitleID)
	if err != nil {
		return err
	}
	return expectRow(res, "review not found")
}

// DeleteReview removes a review and its comments.
func (s *Store) DeleteReview(ctx context.Context, titleID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ? AND title_id = ?`, id, titleID)
	if err != nil {
		return err
	}
	return expectRow(res, "review not found")
}

func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	c.PubDate = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments(review_id,author_id,text,pub_date) VALUES(?,?,?,?)`,
		c.ReviewID, c.AuthorID, c.Text, c.PubDate)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

const commentSelect = `SELECT c.id, c.review_id, c.author_id, u.username, c.text, c.pub_date
	FROM comments c JOIN users u ON u.id = c.author_id`

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	c := &models.Comment{}
	err := row.Scan(&c.ID, &c.ReviewID, &c.AuthorID, &c.Author, &c.Text, &c.PubDate)
	return c, err
}

// CommentByID loads a comment that belongs to reviewID.
func (s *Store) CommentByID(ctx context.Context, reviewID, id int64) (*models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = ? AND c.review_id = ?`, id, reviewID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("comment not found")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, reviewID int64, page Page) ([]models.Comment, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE review_id = ?`, reviewID).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, largs := page.clause()
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE c.review_id = ? ORDER BY c.pub_date, c.id`+limit,
		append([]any{reviewID}, largs...)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (s *Store) UpdateComment(ctx context.Context, c *models.Comment) error {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET text = ? WHERE id = ? AND review_id = ?`, c.Text, c.ID, c.ReviewID)
	if err != nil {
		return err
	}
	return expectRow(res, "comment not found")
}

func (s *Store) DeleteComment(ctx context.Context, reviewID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ? AND review_id = ?`, id, reviewID)
	if err != nil {
		return err
	}
	return expectRow(res, "comment not found")
}
