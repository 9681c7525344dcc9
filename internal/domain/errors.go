package domain

import "fmt"

// Error types for consistent error handling across the client core.
// Transport and storage failures are converted into these at the boundary
// (HTTP gateway / local store); stores dispatch on them with errors.As.

// ErrNetwork indicates a transport failure: the server was never reached or
// produced no usable response.
type ErrNetwork struct {
	Op  string
	Err error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Op, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates a 401 that token refresh could not resolve.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a version mismatch or an explicit server conflict.
// Conflicts are never auto-resolved; they must reach a human decision point.
type ErrConflict struct {
	EntityType string
	EntityID   string
	Message    string
}

func (e *ErrConflict) Error() string {
	if e.EntityType != "" {
		return fmt.Sprintf("conflict on %s %s: %s", e.EntityType, e.EntityID, e.Message)
	}
	return fmt.Sprintf("conflict: %s", e.Message)
}

// ErrValidation indicates a 4xx rejection with optional field details.
type ErrValidation struct {
	Message string
	Fields  map[string]string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ErrStorage indicates the local persistent store is unavailable. Callers
// treat persistence as best-effort and degrade to in-memory operation.
type ErrStorage struct {
	Op  string
	Err error
}

func (e *ErrStorage) Error() string {
	return fmt.Sprintf("storage error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStorage) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a resource was not found, locally or on the server.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrSyncInProgress indicates a pull or push was requested for a book whose
// previous sync has not finished. Per-book sync operations are serialized.
type ErrSyncInProgress struct {
	BookID string
}

func (e *ErrSyncInProgress) Error() string {
	return fmt.Sprintf("sync already in progress for book %s", e.BookID)
}

// ErrAPI is a server rejection that fits no more specific type (5xx, odd
// status codes).
type ErrAPI struct {
	Status  int
	Code    string
	Message string
}

func (e *ErrAPI) Error() string {
	return fmt.Sprintf("api error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}
