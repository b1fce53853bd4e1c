package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParse marks unreadable or malformed document content.
	ErrParse = errors.New("unreadable document")
	// ErrTooLarge marks a payload over the configured ceiling.
	ErrTooLarge = errors.New("payload too large")
	// ErrConflict marks a doc_id collision on distinct content.
	ErrConflict = errors.New("doc_id conflict")
	// ErrInvalidInput marks a malformed request rejected before the core.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDependency marks an embedding/index/generation gateway failure.
	ErrDependency = errors.New("dependency failure")
	// ErrDocumentNotFound marks a lookup for an unknown doc_id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrTemporary marks a failure worth retrying at the caller.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
