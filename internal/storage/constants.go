package storage

import "errors"

const (
	// TableName is the single table holding clipboard history
	TableName = "clipboard"

	ColumnID       = "id"
	ColumnKind     = "type"
	ColumnPayload  = "data"
	ColumnDate     = "date"
	ColumnFilePath = "filepath"
)

// Storage errors
var (
	ErrNotFound = errors.New("entry not found")
	ErrClosed   = errors.New("storage handle closed")
)
