package model

import "time"

type Decision int

const (
	DecisionCancel Decision = iota
	DecisionOverwrite
	DecisionAppend
	DecisionNewFile
	// DecisionViewDiff is not terminal; the prompt is shown again afterwards.
	DecisionViewDiff
)

var decisionNames = map[Decision]string{
	DecisionCancel:    "cancel",
	DecisionOverwrite: "overwrite",
	DecisionAppend:    "append",
	DecisionNewFile:   "newfile",
	DecisionViewDiff:  "viewdiff",
}

func (d Decision) String() string {
	if s, ok := decisionNames[d]; ok {
		return s
	}
	return "unknown"
}

func ParseDecision(s string) (Decision, bool) {
	for d, name := range decisionNames {
		if name == s {
			return d, true
		}
	}
	return DecisionCancel, false
}

func (d Decision) Terminal() bool { return d != DecisionViewDiff }

// ConflictDecision is what the user picked for a pre-existing file. NewName
// is only meaningful for DecisionNewFile.
type ConflictDecision struct {
	Kind    Decision
	NewName string
}

// FileInfo describes an existing file in a backend.
type FileInfo struct {
	Exists  bool
	Path    string
	Size    int64
	ModTime time.Time
}
