package errors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid")
	ErrConflict      = errors.New("conflict")
	ErrInternal      = errors.New("internal")
	ErrFetch         = errors.New("fetch failed")
	ErrParse         = errors.New("parse failed")
	ErrEmbedding     = errors.New("embedding failed")
	ErrSearch        = errors.New("search failed")
	ErrGeneration    = errors.New("generation failed")
	ErrPersistence   = errors.New("persistence failed")
	ErrAIUnavailable = errors.New("ai unavailable")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsFetch(err error) bool {
	return errors.Is(err, ErrFetch)
}

func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}
