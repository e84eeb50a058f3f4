// Package conflict decides what to do when the publish target already
// exists. It only builds a plan; writing it is the caller's job.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/util"
)

const (
	PreviewLimit = 800
	DiffLimit    = 1500

	// Separator joins existing content and the draft on append.
	Separator = "\n\n"

	// maxRounds caps how often the question is asked before giving up.
	maxRounds = 20
)

// Plan is a terminal decision with the exact bytes to write.
type Plan struct {
	Decision model.Decision
	Name     string
	Content  []byte
}

func (p Plan) Cancelled() bool { return p.Decision == model.DecisionCancel }

type Resolver struct {
	prompter prompt.Prompter
	now      func() time.Time
}

func New(p prompt.Prompter, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{prompter: p, now: now}
}

var options = []prompt.Option{
	{Key: model.DecisionOverwrite.String(), Label: "Overwrite the existing file"},
	{Key: model.DecisionAppend.String(), Label: "Append to the end of the file"},
	{Key: model.DecisionNewFile.String(), Label: "Save as a new file"},
	{Key: model.DecisionViewDiff.String(), Label: "View differences"},
	{Key: model.DecisionCancel.String(), Label: "Cancel"},
}

// Resolve asks until the user reaches a terminal decision. Dismissing the
// prompt is the same as cancel. existingPath is only shown to the user.
func (r *Resolver) Resolve(ctx context.Context, existingPath, name string, existing, candidate []byte) (Plan, error) {
	q := prompt.Question{
		ID:      prompt.QuestionConflict,
		Title:   "A file with this name already exists",
		Body:    fmt.Sprintf("%s\n\n%s", existingPath, util.Truncate(string(existing), PreviewLimit)),
		Options: options,
	}

	for round := 0; round < maxRounds; round++ {
		key, err := r.prompter.Choose(ctx, q)
		if err != nil {
			return Plan{}, err
		}

		decision, ok := model.ParseDecision(key)
		if !ok {
			return Plan{Decision: model.DecisionCancel}, nil
		}

		switch decision {
		case model.DecisionOverwrite:
			return Plan{Decision: decision, Name: name, Content: candidate}, nil

		case model.DecisionAppend:
			return Plan{Decision: decision, Name: name, Content: Append(existing, candidate)}, nil

		case model.DecisionNewFile:
			newName, ok, err := r.askName(ctx)
			if err != nil {
				return Plan{}, err
			}
			if !ok {
				continue
			}
			return Plan{Decision: decision, Name: newName, Content: candidate}, nil

		case model.DecisionViewDiff:
			if err := r.prompter.Show(ctx, "Differences", Diff(string(existing), string(candidate), DiffLimit)); err != nil {
				return Plan{}, err
			}

		default:
			return Plan{Decision: model.DecisionCancel}, nil
		}
	}
	return Plan{Decision: model.DecisionCancel}, nil
}

// askName returns ok=false when the user backed out or gave nothing usable.
func (r *Resolver) askName(ctx context.Context) (string, bool, error) {
	suggested := model.SuggestedNewFileName(r.now())
	answer, ok, err := r.prompter.Input(ctx, prompt.QuestionNewFileName, "Save as a new file", "File name (including .md)", suggested)
	if err != nil || !ok {
		return "", false, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false, nil
	}
	name, err := model.CleanName(answer)
	if err != nil {
		r.prompter.Notify(prompt.LevelError, err.Error())
		return "", false, nil
	}
	return name, true, nil
}

// Append is existing content, a blank line, then the candidate.
func Append(existing, candidate []byte) []byte {
	out := make([]byte, 0, len(existing)+len(Separator)+len(candidate))
	out = append(out, existing...)
	out = append(out, Separator...)
	return append(out, candidate...)
}

// Diff renders both sides, each cut to limit runes, followed by a line
// change summary.
func Diff(existing, candidate string, limit int) string {
	added, removed := LineChanges(existing, candidate)

	var b strings.Builder
	fmt.Fprintf(&b, "Existing file (first %d characters):\n\n%s\n\n", limit, util.Truncate(existing, limit))
	fmt.Fprintf(&b, "Current draft (first %d characters):\n\n%s\n\n", limit, util.Truncate(candidate, limit))
	fmt.Fprintf(&b, "%d line(s) added, %d line(s) removed", added, removed)
	return b.String()
}

// LineChanges counts inserted and deleted lines between a and b.
func LineChanges(a, b string) (added, removed int) {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if d.Text != "" && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
