package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"yamdb/internal/apperrors"
	"yamdb/internal/db"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// fail maps err onto a status code and body. Unclassified errors are
// logged and hidden behind a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		h.log.Printf("%s %s: %v request_id=%s", r.Method, r.URL.Path, err, RequestID(r.Context()))
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	switch e.Kind {
	case apperrors.KindValidation, apperrors.KindConflict:
		if len(e.Fields) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string][]string{apperrors.NonFieldErrors: {e.Message}})
			return
		}
		writeJSON(w, http.StatusBadRequest, e.Fields)
	case apperrors.KindAuthentication:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		writeDetail(w, http.StatusUnauthorized, e.Message)
	case apperrors.KindAuthorization:
		writeDetail(w, http.StatusForbidden, e.Message)
	case apperrors.KindNotFound:
		writeDetail(w, http.StatusNotFound, e.Message)
	default:
		h.log.Printf("%s %s: unhandled error kind %q: %v", r.Method, r.URL.Path, e.Kind, err)
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
	}
}

// decode reads a JSON object body into dst.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation(map[string][]string{apperrors.NonFieldErrors: {"Request body is empty."}})
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperrors.Validation(map[string][]string{typeErr.Field: {"Incorrect type."}})
		}
		return apperrors.Validation(map[string][]string{apperrors.NonFieldErrors: {"Malformed JSON: " + err.Error()}})
	}
	return nil
}

// pathID parses a positive integer path value; anything else is a 404.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound("Not found.")
	}
	return id, nil
}

// pageRequest is a parsed ?page= parameter.
type pageRequest struct {
	number int
	size   int
}

func (h *Handler) page(r *http.Request) (pageRequest, error) {
	p := pageRequest{number: 1, size: h.pageSize}
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, apperrors.NotFound("Invalid page.")
		}
		p.number = n
	}
	return p, nil
}

func (p pageRequest) window() db.Page {
	return db.Page{Limit: p.size, Offset: (p.number - 1) * p.size}
}

// Paginated is the list envelope.
type Paginated[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// paginate builds the envelope. A page past the end is a 404 unless the
// result set is empty and the first page was requested.
func paginate[T any](r *http.Request, p pageRequest, total int, results []T) (Paginated[T], error) {
	last := (total + p.size - 1) / p.size
	if last == 0 {
		last = 1
	}
	if p.number > last {
		return Paginated[T]{}, apperrors.NotFound("Invalid page.")
	}
	if results == nil {
		results = []T{}
	}
	out := Paginated[T]{Count: total, Results: results}
	if p.number < last {
		out.Next = pageLink(r, p.number+1)
	}
	if p.number > 1 {
		out.Previous = pageLink(r, p.number-1)
	}
	return out, nil
}

// pageLink renders an absolute link to page n; page 1 drops the parameter.
func pageLink(r *http.Request, n int) *string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if n == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}
