package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"yamdb/internal/apperrors"
	"yamdb/internal/db"
	"yamdb/internal/models"
	"yamdb/internal/policy"
)

func termResource(t db.Taxonomy) policy.Resource {
	if t == db.Categories {
		return policy.Category
	}
	return policy.Genre
}

func (h *Handler) listTerms(t db.Taxonomy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.page(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		terms, total, err := h.store.ListTerms(r.Context(), t, r.URL.Query().Get("search"), p.window())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out, err := paginate(r, p, total, terms)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type termPayload struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

func (h *Handler) validateName(field string, v *string, required bool, errs apperrors.FieldErrors) {
	switch {
	case v == nil:
		if required {
			errs.Add(field, "This field is required.")
		}
	case strings.TrimSpace(*v) == "":
		errs.Add(field, "This field may not be blank.")
	case utf8.RuneCountInString(*v) > h.limits.NameMax:
		errs.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", h.limits.NameMax))
	}
}

func (h *Handler) createTerm(t db.Taxonomy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, termResource(t), policy.Write, 0) {
			return
		}
		var in termPayload
		if err := decode(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		errs := apperrors.FieldErrors{}
		h.validateName("name", in.Name, true, errs)
		switch {
		case in.Slug == nil || *in.Slug == "":
			errs.Add("slug", "This field is required.")
		case utf8.RuneCountInString(*in.Slug) > h.limits.SlugMax:
			errs.Add("slug", fmt.Sprintf("Ensure this field has no more than %d characters.", h.limits.SlugMax))
		case !h.limits.ValidSlug(*in.Slug):
			errs.Add("slug", "Enter a valid \"slug\" consisting of letters, numbers, underscores or hyphens.")
		}
		if err := errs.Err(); err != nil {
			h.fail(w, r, err)
			return
		}
		n := models.Named{Name: *in.Name, Slug: *in.Slug}
		if _, err := h.store.CreateTerm(r.Context(), t, n); err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}

// renameTerm changes the display name; the slug is the identity and stays.
func (h *Handler) renameTerm(t db.Taxonomy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, termResource(t), policy.Write, 0) {
			return
		}
		slug := r.PathValue("slug")
		if _, _, err := h.store.TermBySlug(r.Context(), t, slug); err != nil {
			h.fail(w, r, err)
			return
		}
		var in termPayload
		if err := decode(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		errs := apperrors.FieldErrors{}
		h.validateName("name", in.Name, false, errs)
		if in.Slug != nil && *in.Slug != slug {
			errs.Add("slug", "The slug cannot be changed.")
		}
		if err := errs.Err(); err != nil {
			h.fail(w, r, err)
			return
		}
		if in.Name != nil {
			if err := h.store.RenameTerm(r.Context(), t, slug, *in.Name); err != nil {
				h.fail(w, r, err)
				return
			}
		}
		_, n, err := h.store.TermBySlug(r.Context(), t, slug)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func (h *Handler) deleteTerm(t db.Taxonomy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.allow(w, r, termResource(t), policy.Write, 0) {
			return
		}
		if err := h.store.DeleteTerm(r.Context(), t, r.PathValue("slug")); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// titleView is the read representation of a title.
type titleView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Year        int              `json:"year"`
	Rating      *float64         `json:"rating"`
	Description string           `json:"description"`
	Genre       []models.Genre   `json:"genre"`
	Category    *models.Category `json:"category"`
}

func newTitleView(t *models.Title) titleView {
	genres := t.Genres
	if genres == nil {
		genres = []models.Genre{}
	}
	c := t.Category
	return titleView{
		ID:          t.ID,
		Name:        t.Name,
		Year:        t.Year,
		Rating:      t.Rating,
		Description: t.Description,
		Genre:       genres,
		Category:    &c,
	}
}

// titlePayload is the write representation; relations are given by slug.
type titlePayload struct {
	Name        *string   `json:"name"`
	Year        *int      `json:"year"`
	Description *string   `json:"description"`
	Genre       *[]string `json:"genre"`
	Category    *string   `json:"category"`
}

func (h *Handler) ListTitles(w http.ResponseWriter, r *http.Request) {
	p, err := h.page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := db.TitleFilter{Category: q.Get("category"), Genre: q.Get("genre"), Name: q.Get("name")}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, apperrors.Validation(map[string][]string{"year": {"Enter a whole number."}}))
			return
		}
		f.Year = year
	}
	titles, total, err := h.store.ListTitles(r.Context(), f, p.window())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]titleView, 0, len(titles))
	for i := range titles {
		views = append(views, newTitleView(&titles[i]))
	}
	out, err := paginate(r, p, total, views)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "title_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.store.TitleByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTitleView(t))
}

func (h *Handler) CreateTitle(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Title, policy.Write, 0) {
		return
	}
	var in titlePayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	tw, err := h.titleWrite(r, in, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.store.CreateTitle(r.Context(), tw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.store.TitleByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTitleView(t))
}

func (h *Handler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Title, policy.Write, 0) {
		return
	}
	id, err := pathID(r, "title_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	current, err := h.store.TitleByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in titlePayload
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	tw, err := h.titleWrite(r, in, current)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.UpdateTitle(r.Context(), id, tw, in.Genre != nil); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.store.TitleByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTitleView(t))
}

func (h *Handler) DeleteTitle(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, policy.Title, policy.Write, 0) {
		return
	}
	id, err := pathID(r, "title_id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteTitle(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// titleWrite validates in against current (nil on create) and resolves
// slugs to ids.
func (h *Handler) titleWrite(r *http.Request, in titlePayload, current *models.Title) (db.TitleWrite, error) {
	creating := current == nil
	var w db.TitleWrite
	if !creating {
		w = db.TitleWrite{
			Name:        current.Name,
			Year:        current.Year,
			Description: current.Description,
			CategoryID:  current.Category.ID,
		}
	}

	errs := apperrors.FieldErrors{}
	h.validateName("name", in.Name, creating, errs)
	if in.Name != nil {
		w.Name = *in.Name
	}

	maxYear := h.now().Year() + 1
	switch {
	case in.Year == nil:
		if creating {
			errs.Add("year", "This field is required.")
		}
	case *in.Year < 0 || *in.Year > maxYear:
		errs.Add("year", fmt.Sprintf("Year must be between 0 and %d.", maxYear))
	default:
		w.Year = *in.Year
	}

	if in.Description != nil {
		w.Description = *in.Description
	}

	switch {
	case in.Category == nil:
		if creating {
			errs.Add("category", "This field is required.")
		}
	default:
		id, _, err := h.store.TermBySlug(r.Context(), db.Categories, *in.Category)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			errs.Add("category", fmt.Sprintf("Object with slug=%s does not exist.", *in.Category))
		case err != nil:
			return w, err
		default:
			w.CategoryID = id
		}
	}

	switch {
	case in.Genre == nil:
		if creating {
			errs.Add("genre", "This field is required.")
		}
	default:
		seen := map[int64]bool{}
		for _, slug := range *in.Genre {
			id, _, err := h.store.TermBySlug(r.Context(), db.Genres, slug)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				errs.Add("genre", fmt.Sprintf("Object with slug=%s does not exist.", slug))
			case err != nil:
				return w, err
			case !seen[id]:
				seen[id] = true
				w.GenreIDs = append(w.GenreIDs, id)
			}
		}
	}

	return w, errs.Err()
}
