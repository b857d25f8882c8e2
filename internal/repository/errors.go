// Package repository defines error types that are reused across the
// persistence layer. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting driver-specific errors.
package repository

import "errors"

// ErrConventionNotFound is returned when a lookup or update targets a
// convention id that does not exist. Handlers should translate this
// into an HTTP 404 response.
var ErrConventionNotFound = errors.New("convention not found")

// ErrScopeLockTimeout is returned when the per-scope-key advisory lock
// cannot be acquired within the configured wait. Another writer is
// holding the scope; the caller should retry later. Handlers should
// translate this into an HTTP 503 response.
var ErrScopeLockTimeout = errors.New("scope lock timeout")
