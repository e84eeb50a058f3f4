// Package draft keeps the document being edited durable between sessions.
package draft

import (
	"time"

	"github.com/pkg/errors"
)

type ID string

type Draft struct {
	ID      ID
	Content []byte
	Cursor  int
	// SavedAt is the last-saved marker; nil once the draft was saved empty.
	SavedAt *time.Time

	Initialized bool
}

// Repository is the durable mirror behind a Session. Saving empty content
// must clear the last-saved marker.
type Repository interface {
	CreateDraft() (*Draft, error)
	SaveDraft(id ID, content []byte, cursor int) error
	GetDraft(id ID) (*Draft, error)
	DeleteDraft(id ID) error
}

var ErrNotFound = errors.New("draft not found")
