package app

import "errors"

var (
	ErrBookNotFound     = errors.New("book not found")
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrReviewNotFound   = errors.New("review not found")
	ErrBookmarkNotFound = errors.New("bookmark not found")

	// ErrForbidden is returned when the caller's role or ownership does not
	// allow the operation.
	ErrForbidden = errors.New("operation not allowed")

	ErrDuplicateReview   = errors.New("review already exists for this book")
	ErrDuplicateBookmark = errors.New("bookmark already exists")

	ErrTitleRequired  = errors.New("title is required")
	ErrPDFRequired    = errors.New("a PDF file is required")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrQuotaExceeded  = errors.New("reading quota exceeded")
	ErrEmptyDocument  = errors.New("no text extracted from PDF")
	ErrInvalidPayload = errors.New("invalid request payload")
)
