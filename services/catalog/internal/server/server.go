package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/internal/util"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/token"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/services/catalog/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Tokens         *token.Issuer
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the catalog service.
type Server struct {
	app            *app.App
	tokens         *token.Issuer
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokens:         cfg.Tokens,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("catalog", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/Books", s.authenticated(s.handleBooks))
	s.mux.Handle("/api/Books/", s.authenticated(s.handleBookSubtree))
	s.mux.Handle("/api/BookReview", s.authenticated(s.handleReviews))
	s.mux.Handle("/api/BookReview/", s.authenticated(s.handleReviewSubtree))
	s.mux.Handle("/api/Bookmark", s.authenticated(s.handleBookmarks))
	s.mux.Handle("/api/Bookmark/", s.authenticated(s.handleBookmarkByBook))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the caller from the bearer token claims. The
// catalog trusts the shared signing secret and does not call back into the
// auth service.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := claims.UserID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, domain.User{
			ID:           id,
			Email:        claims.Email,
			Name:         claims.Name,
			Role:         domain.UserRole(claims.Role),
			Subscription: domain.SubscriptionTier(claims.Subscription),
			Active:       true,
		})
	})
}

// /api/Books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListApproved()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, bookList{Items: books, Count: len(books)})
	case http.MethodPost:
		s.handleSubmitBook(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSubmitBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "PDF file is required (field: file)")
		return
	}
	defer file.Close()

	in := app.SubmitBookInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Filename:    header.Filename,
		File:        file,
	}
	if cover, coverHeader, err := r.FormFile("cover"); err == nil {
		defer cover.Close()
		in.Cover = cover
		in.CoverFilename = coverHeader.Filename
		in.CoverSize = coverHeader.Size
	}

	book, err := s.app.SubmitBook(r.Context(), user, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// /api/Books/{id}, /api/Books/{id}/approve, /api/Books/{id}/chunks/{n},
// /api/Books/pending, /api/Books/mine
func (s *Server) handleBookSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/Books/"), "/")
	parts := strings.Split(rest, "/")

	switch parts[0] {
	case "pending":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		books, err := s.app.ListPending(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bookList{Items: books, Count: len(books)})
		return
	case "mine":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		books, err := s.app.ListMine(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bookList{Items: books, Count: len(books)})
		return
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	bookID := uint(id)

	switch {
	case len(parts) == 1:
		s.handleBookByID(w, r, user, bookID)
	case len(parts) == 2 && parts[1] == "approve":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		if err := s.app.ApproveBook(user, bookID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": bookID, "approved": true})
	case len(parts) == 3 && parts[1] == "chunks":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		chunkNumber, err := strconv.Atoi(parts[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chunk number")
			return
		}
		read, err := s.app.GetChunk(r.Context(), user, bookID, chunkNumber)
		if err != nil {
			if errors.Is(err, app.ErrQuotaExceeded) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":     err.Error(),
					"allowance": read.Allowance,
				})
				return
			}
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, read)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User, bookID uint) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(user, bookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		coverURL, err := s.app.CoverURL(r.Context(), book)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, bookDetail{Book: book, CoverURL: coverURL})
	case http.MethodPut:
		var req bookUpdateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		book, err := s.app.UpdateBook(user, bookID, req.Title, req.Description)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), user, bookID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": bookID, "deleted": true})
	default:
		methodNotAllowed(w)
	}
}

// /api/BookReview
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	review, err := s.app.CreateReview(user, req.BookID, req.Rating, req.Text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// /api/BookReview/{id}, /api/BookReview/book/{bookId},
// /api/BookReview/stats/{bookId}
func (s *Server) handleReviewSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/BookReview/"), "/")
	parts := strings.Split(rest, "/")

	if len(parts) == 2 {
		bookID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid book id")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		switch parts[0] {
		case "book":
			reviews, err := s.app.ListReviews(user, uint(bookID))
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, reviewList{Items: reviews, Count: len(reviews)})
		case "stats":
			stats, err := s.app.ReviewStats(user, uint(bookID))
			if err != nil {
				writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, stats)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}
	reviewID := uint(id)

	switch r.Method {
	case http.MethodPut:
		var req reviewRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		review, err := s.app.UpdateReview(user, reviewID, req.Rating, req.Text)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, review)
	case http.MethodDelete:
		if err := s.app.DeleteReview(user, reviewID); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": reviewID, "deleted": true})
	default:
		methodNotAllowed(w)
	}
}

// /api/Bookmark
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		bookmarks, err := s.app.ListBookmarks(user)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, bookmarkList{Items: bookmarks, Count: len(bookmarks)})
	case http.MethodPost:
		var req bookmarkRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		bookmark, err := s.app.AddBookmark(user, req.BookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bookmark)
	default:
		methodNotAllowed(w)
	}
}

// DELETE /api/Bookmark/{bookId}
func (s *Server) handleBookmarkByBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/Bookmark/"), "/")
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveBookmark(user, uint(id)); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookId": id, "deleted": true})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAppError maps orchestration errors to HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrBookNotFound),
		errors.Is(err, app.ErrChunkNotFound),
		errors.Is(err, app.ErrReviewNotFound),
		errors.Is(err, app.ErrBookmarkNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateReview), errors.Is(err, app.ErrDuplicateBookmark):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrTitleRequired),
		errors.Is(err, app.ErrPDFRequired),
		errors.Is(err, app.ErrInvalidRating),
		errors.Is(err, app.ErrEmptyDocument),
		errors.Is(err, app.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type bookUpdateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type reviewRequest struct {
	BookID uint   `json:"bookId"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

type bookmarkRequest struct {
	BookID uint `json:"bookId"`
}

type bookList struct {
	Items []domain.Book `json:"items"`
	Count int           `json:"count"`
}

type bookDetail struct {
	domain.Book
	CoverURL string `json:"coverUrl,omitempty"`
}

type reviewList struct {
	Items []domain.BookReview `json:"items"`
	Count int                 `json:"count"`
}

type bookmarkList struct {
	Items []domain.Bookmark `json:"items"`
	Count int               `json:"count"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if raw == "" {
		return "", false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
