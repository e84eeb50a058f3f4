package prompt

import (
	"context"
	"sync"
)

// Dismiss, queued as an answer, dismisses the prompt.
const Dismiss = "\x00dismiss"

// Scripted answers from per-question queues, then per-question defaults,
// and dismisses anything else. It records what was asked.
type Scripted struct {
	mu       sync.Mutex
	queued   map[string][]string
	defaults map[string]string

	asked []Question
	shown []string
	notes []string
}

func NewScripted() *Scripted {
	return &Scripted{
		queued:   make(map[string][]string),
		defaults: make(map[string]string),
	}
}

// On queues answers for question id, consumed in order.
func (s *Scripted) On(id string, answers ...string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[id] = append(s.queued[id], answers...)
	return s
}

// Always answers question id with answer once its queue is empty.
func (s *Scripted) Always(id, answer string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[id] = answer
	return s
}

func (s *Scripted) next(id string) (string, bool) {
	if q := s.queued[id]; len(q) > 0 {
		s.queued[id] = q[1:]
		return q[0], true
	}
	a, ok := s.defaults[id]
	return a, ok
}

func (s *Scripted) Choose(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, q)

	a, ok := s.next(q.ID)
	if !ok || a == Dismiss || !q.Has(a) {
		return "", nil
	}
	return a, nil
}

func (s *Scripted) Input(ctx context.Context, id, title, label, initial string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, Question{ID: id, Title: title, Body: label})

	a, ok := s.next(id)
	if !ok || a == Dismiss {
		return "", false, nil
	}
	return a, true, nil
}

func (s *Scripted) Show(ctx context.Context, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, body)
	return nil
}

func (s *Scripted) Notify(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, msg)
}

// Asked returns the IDs of every question asked so far.
func (s *Scripted) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.asked))
	for i, q := range s.asked {
		ids[i] = q.ID
	}
	return ids
}

// Questions returns every question asked so far.
func (s *Scripted) Questions() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Question(nil), s.asked...)
}

func (s *Scripted) Shown() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.shown...)
}

func (s *Scripted) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}
