package types

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the category of a clipboard capture
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindMail  Kind = "mail"
	KindColor Kind = "color"
	KindImage Kind = "image"
)

// DateLayout is the layout used to render capture timestamps
const DateLayout = "2006-01-02 15:04:05"

var ErrInvalidKind = errors.New("invalid entry kind")

// Kinds lists every recognized kind
func Kinds() []Kind {
	return []Kind{KindText, KindURL, KindMail, KindColor, KindImage}
}

// ParseKind converts a stored tag into a Kind
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) String() string {
	return string(k)
}

// Entry is one clipboard capture. ID is zero until storage assigns it.
type Entry struct {
	ID         int64  `json:"id"`
	Kind       Kind   `json:"kind"`
	Payload    string `json:"payload"`
	FilePath   string `json:"file_path,omitempty"`
	CapturedAt int64  `json:"captured_at"`
}

// NewEntry builds an unsaved entry captured at the given time
func NewEntry(kind Kind, payload string, capturedAt time.Time) Entry {
	return Entry{
		Kind:       kind,
		Payload:    payload,
		CapturedAt: capturedAt.Unix(),
	}
}

// IsNew reports whether the entry has never been persisted
func (e Entry) IsNew() bool {
	return e.ID == 0
}

// ImagePath returns the backing file of an image entry
func (e Entry) ImagePath() string {
	if e.Kind != KindImage {
		return ""
	}
	if e.FilePath != "" {
		return e.FilePath
	}
	return e.Payload
}

// Display returns the string shown for the entry
func (e Entry) Display() string {
	if e.Kind == KindImage {
		return e.ImagePath()
	}
	return e.Payload
}

func (e Entry) String() string {
	return e.Display()
}

// Time returns the capture time
func (e Entry) Time() time.Time {
	return time.Unix(e.CapturedAt, 0)
}

// FormattedDate renders the capture time in local time
func (e Entry) FormattedDate() string {
	return e.Time().Local().Format(DateLayout)
}
