package draft

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/metrics"
	"github.com/debemdeboas/dailywrite/internal/util"
)

var draftLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	draftLogger = l
}

const DefaultDebounce = time.Second

// State is a snapshot of a session handed to listeners.
type State struct {
	ID      ID         `json:"id"`
	Text    string     `json:"text"`
	Cursor  int        `json:"cursor"`
	SavedAt *time.Time `json:"saved_at,omitempty"`
	Words   int        `json:"words"`
	Dirty   bool       `json:"dirty"`
}

// Session owns the current document. Edits are persisted after a quiet
// period; Save and ClearIfUnchanged persist immediately.
type Session struct {
	repo     Repository
	id       ID
	debounce time.Duration

	mu        sync.Mutex
	text      []rune
	cursor    int
	savedAt   *time.Time
	timer     *time.Timer
	gen       uint64
	dirty     bool
	lastErr   error
	listeners []func(State)
}

// Open loads draft id from repo, starting empty when nothing was saved yet.
func Open(repo Repository, id ID, debounce time.Duration) (*Session, error) {
	s := &Session{repo: repo, id: id, debounce: debounce}

	d, err := repo.GetDraft(id)
	switch {
	case errors.Is(err, ErrNotFound):
		draftLogger.Debug().Str("draft_id", string(id)).Msg("Starting empty draft")
	case err != nil:
		return nil, backend.New(backend.Draft, backend.KindOther, "load", err)
	default:
		s.text = []rune(string(d.Content))
		s.cursor = clamp(d.Cursor, len(s.text))
		s.savedAt = d.SavedAt
	}
	return s, nil
}

func (s *Session) ID() ID { return s.id }

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st := State{
		ID:     s.id,
		Text:   string(s.text),
		Cursor: s.cursor,
		Words:  util.WordCount(string(s.text)),
		Dirty:  s.dirty,
	}
	if s.savedAt != nil {
		t := *s.savedAt
		st.SavedAt = &t
	}
	return st
}

// Subscribe registers fn to be called after every persisted change.
func (s *Session) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Edit replaces the document as typed by the user and schedules an autosave.
func (s *Session) Edit(text string, cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = []rune(text)
	s.cursor = clamp(cursor, len(s.text))
	s.scheduleLocked()
}

// InsertAtCursor splices snippet in at the cursor, moves the cursor past it
// and schedules an autosave.
func (s *Session) InsertAtCursor(snippet string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins := []rune(snippet)
	out := make([]rune, 0, len(s.text)+len(ins))
	out = append(out, s.text[:s.cursor]...)
	out = append(out, ins...)
	out = append(out, s.text[s.cursor:]...)
	s.text = out
	s.cursor += len(ins)
	s.scheduleLocked()
}

func (s *Session) scheduleLocked() {
	s.dirty = true
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.debounce <= 0 {
		s.timer = nil
		if err := s.persistLocked(); err != nil {
			draftLogger.Error().Err(err).Str("draft_id", string(s.id)).Msg("Autosave failed")
		}
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if gen != s.gen || !s.dirty {
			s.mu.Unlock()
			return
		}
		err := s.persistLocked()
		state, listeners := s.stateLocked(), s.listeners
		s.mu.Unlock()

		if err != nil {
			draftLogger.Error().Err(err).Str("draft_id", string(s.id)).Msg("Autosave failed")
			return
		}
		notify(listeners, state)
	})
}

func (s *Session) persistLocked() error {
	content := []byte(string(s.text))
	if err := s.repo.SaveDraft(s.id, content, s.cursor); err != nil {
		s.lastErr = err
		metrics.DraftSaves.WithLabelValues(metrics.ResultFailed).Inc()
		return backend.New(backend.Draft, backend.KindOther, "save", err)
	}
	metrics.DraftSaves.WithLabelValues(metrics.ResultOK).Inc()
	s.dirty = false
	s.lastErr = nil
	if len(content) == 0 {
		s.savedAt = nil
	} else {
		now := time.Now()
		s.savedAt = &now
	}
	return nil
}

// Save replaces the document with text and persists it now, cancelling any
// pending autosave. Save("") clears the last-saved marker.
func (s *Session) Save(text string) error {
	s.mu.Lock()
	s.cancelPendingLocked()
	s.text = []rune(text)
	s.cursor = clamp(s.cursor, len(s.text))
	err := s.persistLocked()
	state, listeners := s.stateLocked(), s.listeners
	s.mu.Unlock()

	if err == nil {
		notify(listeners, state)
	}
	return err
}

// Load returns the persisted text, or "" when nothing is saved.
func (s *Session) Load() (string, error) {
	d, err := s.repo.GetDraft(s.id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", backend.New(backend.Draft, backend.KindOther, "load", err)
	}
	return string(d.Content), nil
}

// Flush persists a pending autosave immediately.
func (s *Session) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.cancelPendingLocked()
	err := s.persistLocked()
	state, listeners := s.stateLocked(), s.listeners
	s.mu.Unlock()

	if err == nil {
		notify(listeners, state)
	}
	return err
}

func (s *Session) cancelPendingLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

type snapshot struct {
	text   string
	cursor int
}

// ClearIfUnchanged empties the document and the durable mirror, but only
// while the document still equals published. It reports whether it cleared.
// If the mirror cannot be cleared, or still holds text afterwards, published
// is written back unless something was typed in the meantime, and the error
// returned.
func (s *Session) ClearIfUnchanged(published string) (bool, error) {
	var cleared bool
	err := util.WithRollback(
		func() snapshot {
			s.mu.Lock()
			defer s.mu.Unlock()
			return snapshot{text: published, cursor: s.cursor}
		},
		func() error {
			s.mu.Lock()
			if string(s.text) != published {
				s.mu.Unlock()
				return nil
			}
			cleared = true
			s.cancelPendingLocked()
			s.text = nil
			s.cursor = 0
			err := s.persistLocked()
			state, listeners := s.stateLocked(), s.listeners
			s.mu.Unlock()

			if err == nil {
				notify(listeners, state)
			}
			return err
		},
		func() error {
			if !cleared {
				return nil
			}
			saved, err := s.Load()
			if err != nil {
				return err
			}
			if saved != "" {
				return backend.Errorf(backend.Draft, backend.KindOther, "clear", "draft still holds %d bytes", len(saved))
			}
			return nil
		},
		func(prev snapshot) error {
			s.mu.Lock()
			if len(s.text) > 0 {
				s.mu.Unlock()
				return nil
			}
			s.cancelPendingLocked()
			s.text = []rune(prev.text)
			s.cursor = clamp(prev.cursor, len(s.text))
			err := s.persistLocked()
			state, listeners := s.stateLocked(), s.listeners
			s.mu.Unlock()

			draftLogger.Warn().Str("draft_id", string(s.id)).Msg("Restoring draft after failed clear")
			if err == nil {
				notify(listeners, state)
			}
			return err
		},
	)
	if err != nil {
		return false, errors.Wrap(err, "clear draft after publish")
	}
	return cleared, nil
}

// Err returns the error of the last failed autosave, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close flushes pending edits.
func (s *Session) Close() error {
	return s.Flush()
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
