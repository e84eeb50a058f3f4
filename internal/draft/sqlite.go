package draft

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/debemdeboas/dailywrite/internal/db"
	"github.com/debemdeboas/dailywrite/internal/util"
	"github.com/debemdeboas/dailywrite/internal/util/compression"
)

// SQLRepository stores compressed drafts in the drafts table.
type SQLRepository struct {
	db         db.DB
	compressor compression.Compressor
	now        func() time.Time
}

func NewSQLRepository(database db.DB, compressor compression.Compressor) *SQLRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &SQLRepository{
		db:         database,
		compressor: compressor,
		now:        time.Now,
	}
}

func (r *SQLRepository) CreateDraft() (*Draft, error) {
	id := ID(uuid.New().String())
	if err := r.SaveDraft(id, nil, 0); err != nil {
		return nil, err
	}
	return &Draft{ID: id, Content: []byte{}}, nil
}

func (r *SQLRepository) SaveDraft(id ID, content []byte, cursor int) error {
	compressed, err := r.compressor.Compress(content)
	if err != nil {
		return errors.Wrap(err, "compress draft")
	}

	now := r.now().UTC()
	var savedAt sql.NullTime
	if len(content) > 0 {
		savedAt = sql.NullTime{Time: now, Valid: true}
	}

	_, err = r.db.Exec(`
INSERT INTO drafts (id, content, codec, content_hash, cursor, saved_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    content = excluded.content,
    codec = excluded.codec,
    content_hash = excluded.content_hash,
    cursor = excluded.cursor,
    saved_at = excluded.saved_at,
    updated_at = excluded.updated_at`,
		string(id), compressed, r.compressor.Name(), util.ContentHash(content), cursor, savedAt, now)
	if err != nil {
		return errors.Wrapf(err, "save draft %s", id)
	}
	return nil
}

func (r *SQLRepository) GetDraft(id ID) (*Draft, error) {
	var (
		compressed []byte
		codec      string
		hash       sql.NullString
		cursor     int
		savedAt    sql.NullTime
	)
	err := r.db.QueryRow(`SELECT content, codec, content_hash, cursor, saved_at FROM drafts WHERE id = ?`, string(id)).
		Scan(&compressed, &codec, &hash, &cursor, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load draft %s", id)
	}

	codecImpl, err := compression.For(codec)
	if err != nil {
		return nil, err
	}
	content, err := codecImpl.Decompress(compressed)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress draft %s", id)
	}
	if hash.Valid && hash.String != util.ContentHash(content) {
		return nil, errors.Errorf("draft %s is corrupt: content hash mismatch", id)
	}

	d := &Draft{
		ID:          id,
		Content:     content,
		Cursor:      cursor,
		Initialized: len(content) > 0,
	}
	if savedAt.Valid {
		t := savedAt.Time
		d.SavedAt = &t
	}
	return d, nil
}

func (r *SQLRepository) DeleteDraft(id ID) error {
	if _, err := r.db.Exec(`DELETE FROM drafts WHERE id = ?`, string(id)); err != nil {
		return errors.Wrapf(err, "delete draft %s", id)
	}
	return nil
}
