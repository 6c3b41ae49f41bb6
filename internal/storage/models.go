package storage

import (
	"database/sql"
	"fmt"

	"clipit/pkg/types"
)

// EntryModel is the row layout of the clipboard table
type EntryModel struct {
	ID       int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Type     string         `gorm:"column:type"`
	Data     string         `gorm:"column:data"`
	Date     int64          `gorm:"column:date"`
	FilePath sql.NullString `gorm:"column:filepath"`
}

func (EntryModel) TableName() string {
	return TableName
}

func (m *EntryModel) ToEntry() (types.Entry, error) {
	kind, err := types.ParseKind(m.Type)
	if err != nil {
		return types.Entry{}, fmt.Errorf("row %d: %w", m.ID, err)
	}
	return types.Entry{
		ID:         m.ID,
		Kind:       kind,
		Payload:    m.Data,
		FilePath:   m.FilePath.String,
		CapturedAt: m.Date,
	}, nil
}

// FromEntry builds a row from an entry. The file path column is only
// populated for image entries.
func FromEntry(e types.Entry) *EntryModel {
	model := &EntryModel{
		ID:   e.ID,
		Type: string(e.Kind),
		Data: e.Payload,
		Date: e.CapturedAt,
	}
	if path := e.ImagePath(); path != "" {
		model.FilePath = sql.NullString{String: path, Valid: true}
	}
	return model
}

// Columns returns the column/value pairs written by an update
func (m *EntryModel) Columns() map[string]interface{} {
	return map[string]interface{}{
		ColumnKind:     m.Type,
		ColumnPayload:  m.Data,
		ColumnDate:     m.Date,
		ColumnFilePath: m.FilePath,
	}
}
