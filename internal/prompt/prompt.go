// Package prompt is how coordinators ask the user to choose. Answers come
// from a terminal, from a fixed script, or from an HTTP request's policy.
package prompt

import "context"

// Question IDs let scripted prompters answer by purpose.
const (
	QuestionConflict      = "conflict"
	QuestionNewFileName   = "newfile-name"
	QuestionDirectory     = "directory"
	QuestionLocalFailure  = "local-failure"
	QuestionRemoteFailure = "remote-failure"
	QuestionAssetFailure  = "asset-failure"
)

type Option struct {
	Key   string
	Label string
}

type Question struct {
	ID      string
	Title   string
	Body    string
	Options []Option
}

// Has reports whether key is one of the offered options.
func (q Question) Has(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

type Prompter interface {
	// Choose returns the key of the picked option, or "" when dismissed.
	Choose(ctx context.Context, q Question) (string, error)
	// Input asks for free text. ok is false when dismissed.
	Input(ctx context.Context, id, title, label, initial string) (answer string, ok bool, err error)
	// Show displays text until acknowledged.
	Show(ctx context.Context, title, body string) error
	// Notify is fire and forget.
	Notify(level Level, msg string)
}
