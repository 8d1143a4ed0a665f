package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/domain"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/storage"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/store"
)

// Config holds runtime configuration for the catalog core.
type Config struct {
	DatabaseURL    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	PagesPerChunk  int
	Caps           QuotaCaps

	Store   store.Store
	Objects storage.ObjectStore
}

// App is the catalog orchestration service: books, chunks, reviews,
// bookmarks and usage counters.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	pagesPerChunk int
	caps          QuotaCaps
	presignExpiry time.Duration
}

// New constructs the application, building default dependencies for any
// left nil in cfg.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	pagesPerChunk := cfg.PagesPerChunk
	if pagesPerChunk <= 0 {
		pagesPerChunk = 10
	}
	caps := cfg.Caps
	if caps == (QuotaCaps{}) {
		caps = DefaultQuotaCaps
	}
	return &App{
		store:         dataStore,
		objects:       objects,
		pagesPerChunk: pagesPerChunk,
		caps:          caps,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// SubmitBookInput carries the multipart fields of a book submission.
type SubmitBookInput struct {
	Title         string
	Description   string
	Filename      string
	File          io.Reader
	CoverFilename string
	Cover         io.Reader
	CoverSize     int64
}

// SubmitBook stores the original PDF, chunks it into page-range artifacts
// and creates the unapproved catalog entry.
func (a *App) SubmitBook(ctx context.Context, author domain.User, in SubmitBookInput) (domain.Book, error) {
	if author.Role != domain.RoleAuthor && author.Role != domain.RoleAdmin {
		return domain.Book{}, ErrForbidden
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Book{}, ErrTitleRequired
	}
	if in.File == nil || strings.ToLower(filepath.Ext(in.Filename)) != ".pdf" {
		return domain.Book{}, ErrPDFRequired
	}

	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return domain.Book{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	size, err := io.Copy(tmp, in.File)
	if err != nil {
		tmp.Close()
		return domain.Book{}, fmt.Errorf("buffer upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return domain.Book{}, fmt.Errorf("buffer upload: %w", err)
	}

	chunks, err := chunkPDF(tmp.Name(), a.pagesPerChunk)
	if err != nil {
		return domain.Book{}, err
	}

	slug := slugify(title)
	if slug == "" {
		slug = "book"
	}
	slug = slug + "-" + uuid.NewString()[:8]
	originalKey := path.Join("books", slug, "original.pdf")

	uploaded := []string{originalKey}
	cleanup := func() {
		for _, key := range uploaded {
			_ = a.objects.Delete(context.Background(), key)
		}
	}

	original, err := os.Open(tmp.Name())
	if err != nil {
		return domain.Book{}, fmt.Errorf("reopen upload: %w", err)
	}
	defer original.Close()
	if err := a.objects.Put(ctx, originalKey, original, size, "application/pdf"); err != nil {
		return domain.Book{}, fmt.Errorf("store original: %w", err)
	}

	rows := make([]domain.BookChunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		key := path.Join("books", slug, "chunks", strconv.Itoa(chunk.ChunkNumber)+".txt")
		rows[i] = domain.BookChunk{
			ChunkNumber: chunk.ChunkNumber,
			PageStart:   chunk.PageStart,
			PageEnd:     chunk.PageEnd,
			StorageKey:  key,
			Metadata:    chunk.Metadata,
		}
		g.Go(func() error {
			body := strings.NewReader(chunk.Text)
			return a.objects.Put(gctx, key, body, int64(body.Len()), "text/plain; charset=utf-8")
		})
	}
	if err := g.Wait(); err != nil {
		for _, row := range rows {
			uploaded = append(uploaded, row.StorageKey)
		}
		cleanup()
		return domain.Book{}, fmt.Errorf("store chunks: %w", err)
	}
	for _, row := range rows {
		uploaded = append(uploaded, row.StorageKey)
	}

	coverKey := ""
	if in.Cover != nil && in.CoverFilename != "" {
		ext := strings.ToLower(filepath.Ext(in.CoverFilename))
		switch ext {
		case ".png", ".jpg", ".jpeg", ".webp":
		default:
			cleanup()
			return domain.Book{}, fmt.Errorf("unsupported cover type %q", ext)
		}
		coverKey = path.Join("books", slug, "cover"+ext)
		if err := a.objects.Put(ctx, coverKey, in.Cover, in.CoverSize, "image/"+strings.TrimPrefix(ext, ".")); err != nil {
			cleanup()
			return domain.Book{}, fmt.Errorf("store cover: %w", err)
		}
		uploaded = append(uploaded, coverKey)
	}

	book := domain.Book{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		AuthorID:    author.ID,
		AuthorName:  author.Name,
		Slug:        slug,
		Approved:    false,
		CoverKey:    coverKey,
		StorageKey:  originalKey,
		ChunkCount:  len(rows),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateBook(&book, rows); err != nil {
		cleanup()
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// ListApproved returns the public catalog.
func (a *App) ListApproved() ([]domain.Book, error) {
	return a.store.ListApprovedBooks()
}

// ListPending returns unapproved submissions for the admin review queue.
func (a *App) ListPending(user domain.User) ([]domain.Book, error) {
	if user.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return a.store.ListPendingBooks()
}

// ListMine returns the caller's own submissions regardless of approval.
func (a *App) ListMine(user domain.User) ([]domain.Book, error) {
	return a.store.ListBooksByAuthor(user.ID)
}

// GetBook applies approval visibility: unapproved books are visible only to
// their author and admins.
func (a *App) GetBook(user domain.User, id uint) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if !a.canSeeBook(user, book) {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

func (a *App) canSeeBook(user domain.User, book domain.Book) bool {
	if book.Approved {
		return true
	}
	return user.Role == domain.RoleAdmin || user.ID == book.AuthorID
}

// ApproveBook marks the book approved. Approving an approved book is a
// no-op success.
func (a *App) ApproveBook(user domain.User, id uint) error {
	if user.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	if err := a.store.SetBookApproved(id, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("approve book: %w", err)
	}
	return nil
}

// UpdateBook updates metadata; only the owner or an admin may edit.
func (a *App) UpdateBook(user domain.User, id uint, title, description string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if user.Role != domain.RoleAdmin && user.ID != book.AuthorID {
		return domain.Book{}, ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Book{}, ErrTitleRequired
	}
	if err := a.store.UpdateBook(id, title, strings.TrimSpace(description)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Book{}, ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	updated, _, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	return updated, nil
}

// DeleteBook removes the book row with its chunks, reviews and bookmarks,
// then clears the stored objects best effort.
func (a *App) DeleteBook(ctx context.Context, user domain.User, id uint) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if user.Role != domain.RoleAdmin && user.ID != book.AuthorID {
		return ErrForbidden
	}
	chunks, err := a.store.ListChunks(id)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if err := a.store.DeleteBook(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("delete book: %w", err)
	}
	// Object cleanup after the row cascade; orphaned objects are harmless.
	for _, chunk := range chunks {
		_ = a.objects.Delete(ctx, chunk.StorageKey)
	}
	if book.StorageKey != "" {
		_ = a.objects.Delete(ctx, book.StorageKey)
	}
	if book.CoverKey != "" {
		_ = a.objects.Delete(ctx, book.CoverKey)
	}
	return nil
}

// ChunkRead is the response for a chunk fetch: the chunk row, a presigned
// artifact URL and the caller's remaining allowance.
type ChunkRead struct {
	Chunk     domain.BookChunk `json:"chunk"`
	URL       string           `json:"url"`
	Allowance Allowance        `json:"allowance"`
}

// GetChunk checks approval visibility and the reader quota, presigns the
// artifact and records the consumption.
func (a *App) GetChunk(ctx context.Context, user domain.User, bookID uint, chunkNumber int) (ChunkRead, error) {
	book, ok, err := a.store.GetBook(bookID)
	if err != nil {
		return ChunkRead{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok || !a.canSeeBook(user, book) {
		return ChunkRead{}, ErrBookNotFound
	}
	chunk, ok, err := a.store.GetChunk(bookID, chunkNumber)
	if err != nil {
		return ChunkRead{}, fmt.Errorf("fetch chunk: %w", err)
	}
	if !ok {
		return ChunkRead{}, ErrChunkNotFound
	}
	allowance, err := a.CanConsume(user)
	if err != nil {
		return ChunkRead{}, err
	}
	if !allowance.Allowed {
		return ChunkRead{Allowance: allowance}, ErrQuotaExceeded
	}
	url, err := a.objects.PresignGet(ctx, chunk.StorageKey, a.presignExpiry)
	if err != nil {
		return ChunkRead{}, fmt.Errorf("presign chunk: %w", err)
	}
	if err := a.Consume(user); err != nil {
		return ChunkRead{}, err
	}
	if !allowance.Unmetered {
		// Report the headroom left after this read.
		allowance.Remaining--
		if allowance.Remaining < 0 {
			allowance.Remaining = 0
		}
		allowance.Allowed = allowance.Remaining > 0
	}
	return ChunkRead{Chunk: chunk, URL: url, Allowance: allowance}, nil
}

// CoverURL presigns the book cover; empty string when the book has none.
func (a *App) CoverURL(ctx context.Context, book domain.Book) (string, error) {
	if book.CoverKey == "" {
		return "", nil
	}
	url, err := a.objects.PresignGet(ctx, book.CoverKey, a.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign cover: %w", err)
	}
	return url, nil
}

// CreateReview enforces rating bounds and the one-review-per-user rule.
func (a *App) CreateReview(user domain.User, bookID uint, rating int, text string) (domain.BookReview, error) {
	if rating < 1 || rating > 5 {
		return domain.BookReview{}, ErrInvalidRating
	}
	if _, err := a.GetBook(user, bookID); err != nil {
		return domain.BookReview{}, err
	}
	review := domain.BookReview{
		BookID:    bookID,
		UserID:    user.ID,
		Rating:    rating,
		Text:      strings.TrimSpace(text),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateReview(&review); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.BookReview{}, ErrDuplicateReview
		}
		return domain.BookReview{}, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// UpdateReview lets the review's author (or an admin) change rating and text.
func (a *App) UpdateReview(user domain.User, reviewID uint, rating int, text string) (domain.BookReview, error) {
	if rating < 1 || rating > 5 {
		return domain.BookReview{}, ErrInvalidRating
	}
	review, ok, err := a.store.GetReviewByID(reviewID)
	if err != nil {
		return domain.BookReview{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.BookReview{}, ErrReviewNotFound
	}
	if user.Role != domain.RoleAdmin && user.ID != review.UserID {
		return domain.BookReview{}, ErrForbidden
	}
	if err := a.store.UpdateReview(reviewID, rating, strings.TrimSpace(text)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.BookReview{}, ErrReviewNotFound
		}
		return domain.BookReview{}, fmt.Errorf("update review: %w", err)
	}
	updated, _, err := a.store.GetReviewByID(reviewID)
	if err != nil {
		return domain.BookReview{}, fmt.Errorf("fetch review: %w", err)
	}
	return updated, nil
}

// DeleteReview removes the review; owner or admin only.
func (a *App) DeleteReview(user domain.User, reviewID uint) error {
	review, ok, err := a.store.GetReviewByID(reviewID)
	if err != nil {
		return fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return ErrReviewNotFound
	}
	if user.Role != domain.RoleAdmin && user.ID != review.UserID {
		return ErrForbidden
	}
	if err := a.store.DeleteReview(reviewID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrReviewNotFound
		}
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// ListReviews returns all reviews for a visible book.
func (a *App) ListReviews(user domain.User, bookID uint) ([]domain.BookReview, error) {
	if _, err := a.GetBook(user, bookID); err != nil {
		return nil, err
	}
	return a.store.ListReviewsByBook(bookID)
}

// ReviewStats returns the average rating and count for a visible book.
func (a *App) ReviewStats(user domain.User, bookID uint) (domain.ReviewStats, error) {
	if _, err := a.GetBook(user, bookID); err != nil {
		return domain.ReviewStats{}, err
	}
	stats, err := a.store.ReviewStats(bookID)
	if err != nil {
		return domain.ReviewStats{}, fmt.Errorf("review stats: %w", err)
	}
	return stats, nil
}

// AddBookmark marks reader interest; duplicates conflict.
func (a *App) AddBookmark(user domain.User, bookID uint) (domain.Bookmark, error) {
	if _, err := a.GetBook(user, bookID); err != nil {
		return domain.Bookmark{}, err
	}
	bookmark := domain.Bookmark{
		UserID:    user.ID,
		BookID:    bookID,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AddBookmark(&bookmark); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Bookmark{}, ErrDuplicateBookmark
		}
		return domain.Bookmark{}, fmt.Errorf("add bookmark: %w", err)
	}
	return bookmark, nil
}

// RemoveBookmark deletes the caller's bookmark for a book.
func (a *App) RemoveBookmark(user domain.User, bookID uint) error {
	if err := a.store.RemoveBookmark(user.ID, bookID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrBookmarkNotFound
		}
		return fmt.Errorf("remove bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns the caller's bookmarks.
func (a *App) ListBookmarks(user domain.User) ([]domain.Bookmark, error) {
	return a.store.ListBookmarks(user.ID)
}
