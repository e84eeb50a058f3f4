package model

import "time"

type StepStatus string

const (
	StatusSkipped StepStatus = "skipped"
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
)

type StepResult struct {
	Status StepStatus `json:"status"`
	Path   string     `json:"path,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Kind   string     `json:"kind,omitempty"`
}

func Skipped() StepResult { return StepResult{Status: StatusSkipped} }

func OK(path string) StepResult { return StepResult{Status: StatusOK, Path: path} }

func Failed(kind, reason string) StepResult {
	return StepResult{Status: StatusFailed, Kind: kind, Reason: reason}
}

// PublishOutcome reports each backend independently. Remote is skipped
// whenever Local did not succeed.
type PublishOutcome struct {
	ID         string     `json:"id"`
	Target     TargetName `json:"target"`
	Local      StepResult `json:"local"`
	Remote     StepResult `json:"remote"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`

	DraftCleared bool   `json:"draft_cleared"`
	ExportedTo   string `json:"exported_to,omitempty"`
	// Action is set when the user asked to go to settings from a failure prompt.
	Action string `json:"action,omitempty"`
}

// Succeeded is true when every attempted backend stored the document.
func (o PublishOutcome) Succeeded() bool {
	return o.Local.Status == StatusOK && o.Remote.Status != StatusFailed
}
