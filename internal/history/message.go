package history

import (
	"errors"
	"fmt"
	"time"
)

// Role is the author of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may be stored.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a single conversational message persisted in SQLite.
// ID is the store-assigned sequence and defines chronological order.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// DefaultHistoryLimit is the number of messages fed back as context.
const DefaultHistoryLimit = 20

var (
	// ErrInvalidMessage is returned for an unknown role or empty content.
	ErrInvalidMessage = errors.New("history: invalid message")
	// ErrInvalidLimit is returned when a history limit is not positive.
	ErrInvalidLimit = errors.New("history: limit must be positive")
)

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
