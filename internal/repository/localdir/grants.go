package localdir

import (
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/debemdeboas/dailywrite/internal/db"
)

// GrantStore persists the granted directory across restarts.
// LoadGrant returns "" when nothing is granted.
type GrantStore interface {
	LoadGrant(name string) (string, error)
	SaveGrant(name, path string) error
	DeleteGrant(name string) error
}

type SQLGrants struct {
	db db.DB
}

func NewSQLGrants(database db.DB) *SQLGrants {
	return &SQLGrants{db: database}
}

func (g *SQLGrants) LoadGrant(name string) (string, error) {
	var path string
	err := g.db.QueryRow(`SELECT path FROM grants WHERE name = ?`, name).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "load grant %s", name)
	}
	return path, nil
}

func (g *SQLGrants) SaveGrant(name, path string) error {
	_, err := g.db.Exec(`
INSERT INTO grants (name, path, granted_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET path = excluded.path, granted_at = excluded.granted_at`, name, path)
	return errors.Wrapf(err, "save grant %s", name)
}

func (g *SQLGrants) DeleteGrant(name string) error {
	_, err := g.db.Exec(`DELETE FROM grants WHERE name = ?`, name)
	return errors.Wrapf(err, "delete grant %s", name)
}

type MemoryGrants struct {
	mu     sync.Mutex
	grants map[string]string
}

func NewMemoryGrants() *MemoryGrants {
	return &MemoryGrants{grants: make(map[string]string)}
}

func (g *MemoryGrants) LoadGrant(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grants[name], nil
}

func (g *MemoryGrants) SaveGrant(name, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[name] = path
	return nil
}

func (g *MemoryGrants) DeleteGrant(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, name)
	return nil
}
