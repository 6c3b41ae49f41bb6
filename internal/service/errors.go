package service

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource     = errors.New("no clipboard source configured")
	ErrNoImageCache = errors.New("no image cache configured")
)

// ClipboardError describes a failed service operation
type ClipboardError struct {
	Op      string // Operation that failed
	ID      int64  // Entry involved (if applicable)
	Message string // Error message
	Err     error  // Underlying error
}

func (e *ClipboardError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.ID > 0 {
		return fmt.Sprintf("%s failed for entry %d: %s", e.Op, e.ID, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}
