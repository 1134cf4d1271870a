package storage

import "errors"

var (
	// ErrNotFound is returned when the requested page does not exist.
	ErrNotFound = errors.New("page not found")

	// ErrConflict is returned by a version-guarded write whose expected
	// version no longer matches. Mutate resolves it by retrying; callers
	// only see it when the retry budget is spent.
	ErrConflict = errors.New("page version conflict")

	// ErrDuplicatePage is returned when creating a page for a target that
	// already has one.
	ErrDuplicatePage = errors.New("page already exists for target")
)
