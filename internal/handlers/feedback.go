package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"yamdb/internal/apperrors"
	"yamdb/internal/models"
	"yamdb/internal/policy"
)

type reviewView struct {
	ID      int64     `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	Score   int       `json:"score"`
	PubDate time.Time `json:"pub_date"`
}

func newReviewView(r *models.Review) reviewView {
	return reviewView{ID: r.ID, Text: r.Text, Author: r.Author, Score: r.Score, PubDate: r.PubDate}
}

type commentView struct {
	ID      int64     `json:"id"`
	Text    string    `json:"text"`
	Author  string    `json:"author"`
	PubDate time.Time `json:"pub_date"`
}

func newCommentView(c *models.Comment) commentView {
	return commentView{ID: c.ID, Text: c.Text, Author: c.Author, PubDate: c.PubDate}
}

type reviewPayload struct {
	Text  *string `json:"text"`
	Score *int    `json:"score"`
}

type commentPayload struct {
	Text *string `json:"text"`
}

func validateText(v *string, required bool, errs apperrors.FieldErrors) {
	switch {
	case v == nil:
		if required {
			errs.Add("text", "This field is required.")
		}
	case strings.TrimSpace(*v) == "":
		errs.Add("text", "This field may not be blank.")
	}
}

func (h *Handler) validateReview(in reviewPayload, creating bool) error {
	errs := apperrors.FieldErrors{}
	validateText(in.Text, creating, errs)
	switch {
	case in.Score == nil:
		if creating {
			errs.Add("score", "This field is required.")
		}
	case *in.Score < h.limits.ScoreMin || *in.Score > h.limits.ScoreMax:
		errs.Add("score", fmt.Sprintf("Score must be between %d and %d.", h.limits.ScoreMin, h.limits.ScoreMax))
	}
	return errs.Err()
}

// titleFromPath checks that the title in the path exists.
func (h *Handler) titleFromPath(r *http.Request) (int64, error) {
	id, err := pathID(r, "title_id")
	if err != nil {
		return 0, err
	}
	ok, err := h.store.TitleExists(r.Context(), id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperrors.NotFound("title not found")
	}
	return id, nil
}

// reviewFromPath loads the review in the path, scoped to its title.
func (h *Handler) reviewFromPath(r *http.Request) (*models.Review, error) {
	titleID, err := pathID(r, "title_id")
	if err != nil {
		return nil, err
	}
	id, err := pathID(r, "review_id")
	if err != nil {
		return nil, err
	}
	return h.store.ReviewByID(r.Context(), titleID, id)
}

func (h *Handler) commentFromPath(r *http.Request) (*models.Comment, error) {
	review, err := h.reviewFromPath(r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r, "comment_id")
	if err != nil {
		return nil, err
	}
	return h.store.CommentByID(r.Context(), review.ID, id)
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	titleID, err := h.titleFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reviews, total, err := h.store.ListReviews(r.Context(), titleID, p.window())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]reviewView, 0, len(reviews))
	for i := range reviews {
		views = append(views, newReviewView(&reviews[i]))
	}
	out, err := paginate(r, p, total, views)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviewFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReviewView(review))
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Review, policy.Write, 0) {
		return
	}
	titleID, err := h.titleFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in reviewPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validateReview(in, true); err != nil {
		h.fail(w, r, err)
		return
	}
	me := currentUser(r)
	review := &models.Review{
		TitleID:     titleID,
		AuthorID:    me.ID,
		Author:      me.Username,
		Score:       *in.Score,
		Publication: models.Publication{Text: *in.Text},
	}
	if err := h.store.CreateReview(r.Context(), review); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReviewView(review))
}

func (h *Handler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Review, policy.Write, 0) {
		return
	}
	review, err := h.reviewFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.allow(w, r, policy.Review, policy.Write, review.AuthorID) {
		return
	}
	var in reviewPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validateReview(in, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.Text != nil {
		review.Text = *in.Text
	}
	if in.Score != nil {
		review.Score = *in.Score
	}
	if err := h.store.UpdateReview(r.Context(), review); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newReviewView(review))
}

func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Review, policy.Write, 0) {
		return
	}
	review, err := h.reviewFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.allow(w, r, policy.Review, policy.Write, review.AuthorID) {
		return
	}
	if err := h.store.DeleteReview(r.Context(), review.TitleID, review.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviewFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	comments, total, err := h.store.ListComments(r.Context(), review.ID, p.window())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]commentView, 0, len(comments))
	for i := range comments {
		views = append(views, newCommentView(&comments[i]))
	}
	out, err := paginate(r, p, total, views)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetComment(w http.ResponseWriter, r *http.Request) {
	c, err := h.commentFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommentView(c))
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Comment, policy.Write, 0) {
		return
	}
	review, err := h.reviewFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in commentPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	errs := apperrors.FieldErrors{}
	validateText(in.Text, true, errs)
	if err := errs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	me := currentUser(r)
	c := &models.Comment{
		ReviewID:    review.ID,
		AuthorID:    me.ID,
		Author:      me.Username,
		Publication: models.Publication{Text: *in.Text},
	}
	if err := h.store.CreateComment(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCommentView(c))
}

func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Comment, policy.Write, 0) {
		return
	}
	c, err := h.commentFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.allow(w, r, policy.Comment, policy.Write, c.AuthorID) {
		return
	}
	var in commentPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	errs := apperrors.FieldErrors{}
	validateText(in.Text, false, errs)
	if err := errs.Err(); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.Text != nil {
		c.Text = *in.Text
		if err := h.store.UpdateComment(r.Context(), c); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newCommentView(c))
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Comment, policy.Write, 0) {
		return
	}
	c, err := h.commentFromPath(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.allow(w, r, policy.Comment, policy.Write, c.AuthorID) {
		return
	}
	if err := h.store.DeleteComment(r.Context(), c.ReviewID, c.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
