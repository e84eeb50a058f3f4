package publish

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/debemdeboas/dailywrite/internal/db"
	"github.com/debemdeboas/dailywrite/internal/model"
)

// SQLHistory keeps one row per publish attempt.
type SQLHistory struct {
	db db.DB
}

func NewSQLHistory(database db.DB) *SQLHistory {
	return &SQLHistory{db: database}
}

func (h *SQLHistory) Record(ctx context.Context, out model.PublishOutcome) error {
	_, err := h.db.Exec(`INSERT INTO publishes
		(id, target, local_status, local_reason, remote_status, remote_path, remote_reason, draft_cleared, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.Target.Path(),
		string(out.Local.Status), out.Local.Reason,
		string(out.Remote.Status), out.Remote.Path, out.Remote.Reason,
		out.DraftCleared, out.StartedAt.UTC(), out.FinishedAt.UTC())
	return errors.Wrap(err, "record publish")
}

// Recent returns up to limit attempts, newest first.
func (h *SQLHistory) Recent(limit int) ([]model.PublishOutcome, error) {
	rows, err := h.db.Query(`SELECT id, target, local_status, local_reason, remote_status, remote_path, remote_reason, draft_cleared, started_at, finished_at
		FROM publishes ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query publishes")
	}
	defer rows.Close()

	var outs []model.PublishOutcome
	for rows.Next() {
		var (
			out                                   model.PublishOutcome
			target, localStatus, remoteStatus     string
			localReason, remotePath, remoteReason sql.NullString
		)
		if err := rows.Scan(&out.ID, &target, &localStatus, &localReason, &remoteStatus, &remotePath, &remoteReason,
			&out.DraftCleared, &out.StartedAt, &out.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "scan publish")
		}
		out.Target = targetFromPath(target)
		out.Local = model.StepResult{Status: model.StepStatus(localStatus), Path: target, Reason: localReason.String}
		out.Remote = model.StepResult{Status: model.StepStatus(remoteStatus), Path: remotePath.String, Reason: remoteReason.String}
		if out.Local.Status != model.StatusOK {
			out.Local.Path = ""
		}
		outs = append(outs, out)
	}
	return outs, errors.Wrap(rows.Err(), "iterate publishes")
}

func targetFromPath(p string) model.TargetName {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return model.TargetName{DirectoryPath: p[:i], BaseName: p[i+1:]}
		}
	}
	return model.TargetName{BaseName: p}
}
