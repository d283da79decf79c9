package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"yamdb/internal/auth"
	"yamdb/internal/config"
	"yamdb/internal/db"
)

// APIPrefix is the path prefix of every route.
const APIPrefix = "/api/v1"

type Handler struct {
	store    *db.Store
	flow     *auth.Flow
	tokens   *auth.Manager
	limits   config.Limits
	pageSize int
	log      *log.Logger
	now      func() time.Time
}

func New(store *db.Store, flow *auth.Flow, tokens *auth.Manager, limits config.Limits, pageSize int, logger *log.Logger) *Handler {
	return &Handler{
		store:    store,
		flow:     flow,
		tokens:   tokens,
		limits:   limits,
		pageSize: pageSize,
		log:      logger,
		now:      time.Now,
	}
}

// Routes returns the API with its middleware chain applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, fn http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+APIPrefix+path, fn)
	}

	route("POST /auth/signup", h.Signup)
	route("POST /auth/token", h.Token)

	route("GET /categories", h.listTerms(db.Categories))
	route("POST /categories", h.createTerm(db.Categories))
	route("PATCH /categories/{slug}", h.renameTerm(db.Categories))
	route("DELETE /categories/{slug}", h.deleteTerm(db.Categories))

	route("GET /genres", h.listTerms(db.Genres))
	route("POST /genres", h.createTerm(db.Genres))
	route("PATCH /genres/{slug}", h.renameTerm(db.Genres))
	route("DELETE /genres/{slug}", h.deleteTerm(db.Genres))

	route("GET /titles", h.ListTitles)
	route("POST /titles", h.CreateTitle)
	route("GET /titles/{title_id}", h.GetTitle)
	route("PATCH /titles/{title_id}", h.UpdateTitle)
	route("DELETE /titles/{title_id}", h.DeleteTitle)

	route("GET /titles/{title_id}/reviews", h.ListReviews)
	route("POST /titles/{title_id}/reviews", h.CreateReview)
	route("GET /titles/{title_id}/reviews/{review_id}", h.GetReview)
	route("PATCH /titles/{title_id}/reviews/{review_id}", h.UpdateReview)
	route("DELETE /titles/{title_id}/reviews/{review_id}", h.DeleteReview)

	route("GET /titles/{title_id}/reviews/{review_id}/comments", h.ListComments)
	route("POST /titles/{title_id}/reviews/{review_id}/comments", h.CreateComment)
	route("GET /titles/{title_id}/reviews/{review_id}/comments/{comment_id}", h.GetComment)
	route("PATCH /titles/{title_id}/reviews/{review_id}/comments/{comment_id}", h.UpdateComment)
	route("DELETE /titles/{title_id}/reviews/{review_id}/comments/{comment_id}", h.DeleteComment)

	route("GET /users", h.ListUsers)
	route("POST /users", h.CreateUser)
	route("GET /users/me", h.GetMe)
	route("PATCH /users/me", h.UpdateMe)
	route("GET /users/{username}", h.GetUser)
	route("PATCH /users/{username}", h.UpdateUser)
	route("DELETE /users/{username}", h.DeleteUser)

	var next http.Handler = mux
	next = h.authenticate(next)
	next = TrimTrailingSlash(next)
	next = WithRecover(next, h.log)
	next = WithRequestLog(next, h.log)
	return next
}
