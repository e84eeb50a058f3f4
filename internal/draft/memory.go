package draft

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type MemoryRepository struct {
	drafts sync.Map
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (m *MemoryRepository) CreateDraft() (*Draft, error) {
	id := ID(uuid.New().String())
	draft := &Draft{
		ID:          id,
		Content:     []byte{},
		Initialized: false,
	}
	m.drafts.Store(id, draft)
	return copyDraft(draft), nil
}

func (m *MemoryRepository) SaveDraft(id ID, content []byte, cursor int) error {
	d := &Draft{
		ID:          id,
		Content:     append([]byte(nil), content...),
		Cursor:      cursor,
		Initialized: len(content) > 0,
	}
	if len(content) > 0 {
		now := m.now()
		d.SavedAt = &now
	}
	m.drafts.Store(id, d)
	return nil
}

func (m *MemoryRepository) GetDraft(id ID) (*Draft, error) {
	if draft, ok := m.drafts.Load(id); ok {
		return copyDraft(draft.(*Draft)), nil
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", id)
}

func (m *MemoryRepository) DeleteDraft(id ID) error {
	m.drafts.Delete(id)
	return nil
}

func copyDraft(d *Draft) *Draft {
	c := *d
	c.Content = append([]byte(nil), d.Content...)
	if d.SavedAt != nil {
		t := *d.SavedAt
		c.SavedAt = &t
	}
	return &c
}
