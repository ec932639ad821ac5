package profile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("client config not found")

// NotFoundError reports an unknown tenant. It aborts call setup.
type NotFoundError struct {
	TenantID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("client config not found: %q", e.TenantID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a merged configuration that must not reach a caller.
type ValidationError struct {
	TenantID string
	Missing  []string // required fields absent or empty after merge
	Problems []string // other schema or value violations
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Problems) > 0 {
		parts = append(parts, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("invalid client config %q: %s", e.TenantID, strings.Join(parts, "; "))
}
