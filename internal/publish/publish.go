// Package publish writes the current document to the granted local
// directory and then, when enabled, to the remote repository.
package publish

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/conflict"
	"github.com/debemdeboas/dailywrite/internal/metrics"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/repository/github"
	"github.com/debemdeboas/dailywrite/internal/util"
)

var publishLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	publishLogger = l
}

const (
	// maxRemoteWrites bounds conditional writes per push: the first one and
	// one more after refetching on a version conflict.
	maxRemoteWrites = 2

	// maxAttempts bounds user driven retries of a failed step.
	maxAttempts = 5
)

// Failure prompt answers.
const (
	ActionRetry    = "retry"
	ActionExport   = "export"
	ActionSettings = "settings"
	ActionCancel   = "cancel"
)

var failureOptions = []prompt.Option{
	{Key: ActionRetry, Label: "Retry"},
	{Key: ActionExport, Label: "Export the document to downloads"},
	{Key: ActionSettings, Label: "Open settings"},
	{Key: ActionCancel, Label: "Cancel"},
}

type Local interface {
	Exists(ctx context.Context, dir, name string) (model.FileInfo, error)
	Read(ctx context.Context, dir, name string) ([]byte, error)
	Write(ctx context.Context, dir, name string, data []byte) (string, error)
	Grant(ctx context.Context, dir string) error
}

type Remote interface {
	Fetch(ctx context.Context, ref model.RemoteFileRef) (model.RemoteFileRef, error)
	Put(ctx context.Context, ref model.RemoteFileRef, content []byte, message string) (model.RemoteFileRef, error)
}

type Exporter interface {
	Export(ctx context.Context, name string, data []byte) (string, error)
}

// Draft is the session whose text is being published.
type Draft interface {
	Text() string
	Flush() error
	ClearIfUnchanged(published string) (bool, error)
}

type History interface {
	Record(ctx context.Context, out model.PublishOutcome) error
}

// RemoteFactory builds the remote client from the settings in effect for
// one publish attempt.
type RemoteFactory func(cfg config.RemoteConfig) (Remote, error)

func githubRemote(cfg config.RemoteConfig) (Remote, error) {
	return github.New(cfg.APIBaseURL, cfg.Token, cfg.Timeout), nil
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithHistory(h History) Option {
	return func(c *Coordinator) { c.history = h }
}

func WithRemoteFactory(f RemoteFactory) Option {
	return func(c *Coordinator) { c.newRemote = f }
}

type Coordinator struct {
	local     Local
	exporter  Exporter
	draft     Draft
	history   History
	newRemote RemoteFactory
	now       func() time.Time

	inflight *semaphore.Weighted
}

func New(local Local, exporter Exporter, draft Draft, opts ...Option) *Coordinator {
	c := &Coordinator{
		local:     local,
		exporter:  exporter,
		draft:     draft,
		newRemote: githubRemote,
		now:       time.Now,
		inflight:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// attempt carries the state of one Publish call.
type attempt struct {
	ctx      context.Context
	cfg      *config.Config
	prompter prompt.Prompter
	out      *model.PublishOutcome
	document []byte
	log      zerolog.Logger

	// name is the file actually written, which differs from the target's
	// base name after a new-file decision.
	name string
}

// Publish stores document locally and then remotely, asking p whenever a
// decision is needed. A second call while one is running is rejected with
// a KindBusy error. The outcome reports each backend; the error is nil only
// when every attempted backend succeeded.
func (c *Coordinator) Publish(ctx context.Context, p prompt.Prompter, document string, cfg *config.Config) (model.PublishOutcome, error) {
	if util.IsBlank(document) {
		metrics.Publishes.WithLabelValues(metrics.ResultEmpty).Inc()
		return model.PublishOutcome{}, backend.Errorf(backend.Publish, backend.KindEmptyInput, "publish", config.ErrEmptyDocument)
	}
	if !c.inflight.TryAcquire(1) {
		metrics.Publishes.WithLabelValues(metrics.ResultBusy).Inc()
		return model.PublishOutcome{}, backend.Errorf(backend.Publish, backend.KindBusy, "publish", config.ErrPublishBusy)
	}
	defer c.inflight.Release(1)

	started := c.now()
	out := model.PublishOutcome{
		ID:        uuid.NewString(),
		Target:    model.NewTargetName(started, cfg.Local.TargetDir),
		Local:     model.Skipped(),
		Remote:    model.Skipped(),
		StartedAt: started,
	}
	a := &attempt{
		ctx:      ctx,
		cfg:      cfg,
		prompter: p,
		out:      &out,
		document: []byte(document),
		log:      publishLogger.With().Str("publish_id", out.ID).Logger(),
	}
	a.log.Info().Str("target", out.Target.Path()).Bool("remote", cfg.Remote.Enabled).Msg("Publishing")

	err := c.run(a)
	out.FinishedAt = c.now()
	metrics.PublishDuration.Observe(out.FinishedAt.Sub(started).Seconds())

	if err != nil {
		metrics.Publishes.WithLabelValues(metrics.ResultFailed).Inc()
		a.log.Warn().Err(err).Str("local", string(out.Local.Status)).Str("remote", string(out.Remote.Status)).Msg("Publish failed")
		c.keepDocument(a)
	} else {
		metrics.Publishes.WithLabelValues(metrics.ResultOK).Inc()
		a.log.Info().Str("local", out.Local.Path).Str("remote", out.Remote.Path).Msg("Published")
	}

	if c.history != nil {
		if herr := c.history.Record(context.WithoutCancel(ctx), out); herr != nil {
			a.log.Error().Err(herr).Msg("Failed to record publish")
		}
	}
	return out, err
}

func (c *Coordinator) run(a *attempt) error {
	if err := c.publishLocal(a); err != nil {
		return err
	}

	if !a.cfg.Remote.Enabled {
		a.log.Debug().Msg("Remote disabled, skipping")
	} else if err := c.publishRemote(a); err != nil {
		return err
	}

	c.clearDraft(a)
	return nil
}

// clearDraft empties the draft only if it still holds what was published.
func (c *Coordinator) clearDraft(a *attempt) {
	if c.draft == nil {
		return
	}
	cleared, err := c.draft.ClearIfUnchanged(string(a.document))
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to clear draft, it was restored")
		a.prompter.Notify(prompt.LevelWarn, "Published, but the draft could not be cleared: "+err.Error())
		return
	}
	if !cleared {
		a.log.Debug().Msg("Draft changed during publish, keeping it")
		return
	}
	a.out.DraftCleared = true
}

// keepDocument makes sure a failed attempt loses nothing. Pending edits are
// flushed as they are; a document the draft does not hold is exported.
func (c *Coordinator) keepDocument(a *attempt) {
	if c.draft != nil {
		if err := c.draft.Flush(); err != nil {
			a.log.Error().Err(err).Msg("Failed to flush draft")
		}
		if c.draft.Text() == string(a.document) {
			return
		}
	}
	if a.out.ExportedTo != "" || c.exporter == nil {
		return
	}
	a.log.Info().Msg("Document is not in the draft, exporting it")
	c.exportDocument(a)
}

func (c *Coordinator) publishLocal(a *attempt) error {
	dir := a.out.Target.DirectoryPath
	var plan *conflict.Plan

	for tries := 1; ; tries++ {
		if plan == nil {
			p, err := c.plan(a)
			if err != nil {
				retry, ferr := c.localFailed(a, err, tries)
				if !retry {
					return ferr
				}
				continue
			}
			if p.Cancelled() {
				return cancelled(a, &a.out.Local, backend.Local)
			}
			plan = &p
		}

		rel, err := c.local.Write(a.ctx, dir, plan.Name, plan.Content)
		if err == nil {
			a.name = plan.Name
			a.out.Target = a.out.Target.WithBase(plan.Name)
			a.out.Local = model.OK(rel)
			a.log.Info().Str("path", rel).Str("decision", plan.Decision.String()).Msg("Saved locally")
			return nil
		}

		retry, ferr := c.localFailed(a, err, tries)
		if !retry {
			return ferr
		}
	}
}

// plan checks the target and resolves a conflict when the file exists.
func (c *Coordinator) plan(a *attempt) (conflict.Plan, error) {
	name := a.out.Target.BaseName
	info, err := c.local.Exists(a.ctx, a.out.Target.DirectoryPath, name)
	if err != nil {
		return conflict.Plan{}, err
	}
	if !info.Exists {
		return conflict.Plan{Decision: model.DecisionOverwrite, Name: name, Content: a.document}, nil
	}

	existing, err := c.local.Read(a.ctx, a.out.Target.DirectoryPath, name)
	if err != nil {
		return conflict.Plan{}, err
	}
	return conflict.New(a.prompter, c.now).Resolve(a.ctx, info.Path, name, existing, a.document)
}

// localFailed decides what happens after a local error. retry is true when
// the caller should loop; otherwise err is the terminal error.
func (c *Coordinator) localFailed(a *attempt, err error, tries int) (retry bool, terminal error) {
	err = backend.Classify(backend.Local, "write", err)
	a.log.Warn().Err(err).Int("try", tries).Msg("Local save failed")

	if ctxErr := a.ctx.Err(); ctxErr != nil {
		return false, failStep(&a.out.Local, backend.Classify(backend.Local, "write", ctxErr))
	}
	if tries >= maxAttempts {
		return false, failStep(&a.out.Local, err)
	}

	if backend.Is(err, backend.KindNoGrant) {
		granted, gerr := c.selectDirectory(a)
		if gerr != nil {
			return false, failStep(&a.out.Local, backend.Classify(backend.Local, "grant", gerr))
		}
		if granted {
			return true, nil
		}
		return false, failStep(&a.out.Local, err)
	}

	action, perr := c.askFailure(a, prompt.QuestionLocalFailure, err)
	if perr != nil {
		return false, failStep(&a.out.Local, backend.Classify(backend.Local, "write", perr))
	}
	if action == ActionRetry {
		return true, nil
	}
	return false, failStep(&a.out.Local, err)
}

// selectDirectory asks for a directory until one is granted or the user
// gives up.
func (c *Coordinator) selectDirectory(a *attempt) (bool, error) {
	for i := 0; i < maxAttempts; i++ {
		dir, ok, err := a.prompter.Input(a.ctx, prompt.QuestionDirectory, "Choose a folder", "Directory to save journals in", "")
		if err != nil {
			return false, err
		}
		dir = strings.TrimSpace(dir)
		if !ok || dir == "" {
			return false, nil
		}
		if err := c.local.Grant(a.ctx, dir); err != nil {
			a.log.Warn().Err(err).Str("dir", dir).Msg("Grant rejected")
			a.prompter.Notify(prompt.LevelError, backend.Describe(err))
			continue
		}
		a.prompter.Notify(prompt.LevelSuccess, "Folder selected: "+dir)
		return true, nil
	}
	return false, nil
}

// askFailure offers retry, export, settings or cancel and carries out
// everything but retry. Dismissal is cancel.
func (c *Coordinator) askFailure(a *attempt, id string, err error) (string, error) {
	key, perr := a.prompter.Choose(a.ctx, prompt.Question{
		ID:      id,
		Title:   "Publishing did not complete",
		Body:    backend.Describe(err),
		Options: failureOptions,
	})
	if perr != nil {
		return "", perr
	}

	switch key {
	case ActionRetry:
		return key, nil
	case ActionExport:
		c.exportDocument(a)
		return key, nil
	case ActionSettings:
		a.out.Action = ActionSettings
		return key, nil
	default:
		return ActionCancel, nil
	}
}

func (c *Coordinator) exportDocument(a *attempt) {
	name := a.name
	if name == "" {
		name = a.out.Target.BaseName
	}
	p, err := c.exporter.Export(context.WithoutCancel(a.ctx), name, a.document)
	if err != nil {
		a.log.Error().Err(err).Msg("Export failed")
		a.prompter.Notify(prompt.LevelError, backend.Describe(err))
		return
	}
	a.out.ExportedTo = p
	a.prompter.Notify(prompt.LevelSuccess, "Exported to "+p)
}

func failStep(step *model.StepResult, err error) error {
	*step = model.Failed(backend.KindOf(err).String(), backend.Describe(err))
	return err
}

func cancelled(a *attempt, step *model.StepResult, b backend.Name) error {
	err := backend.Errorf(b, backend.KindUserCancelled, "publish", "cancelled by user")
	a.log.Info().Str("backend", string(b)).Msg("Publish cancelled")
	return failStep(step, err)
}

func (c *Coordinator) publishRemote(a *attempt) error {
	remote, ref, err := c.remoteTarget(a)
	if err != nil {
		return failStep(&a.out.Remote, err)
	}
	message := strings.TrimSpace(a.cfg.Remote.CommitPrefix + " " + a.name)

	for tries := 1; ; tries++ {
		pushed, err := c.push(a, remote, ref, message)
		if err == nil {
			a.out.Remote = model.OK(pushed.Path)
			a.log.Info().Str("ref", pushed.String()).Msg("Pushed to remote")
			return nil
		}

		a.log.Warn().Err(err).Int("try", tries).Msg("Remote push failed")
		if ctxErr := a.ctx.Err(); ctxErr != nil {
			return failStep(&a.out.Remote, backend.Classify(backend.Remote, "push", ctxErr))
		}
		if tries >= maxAttempts {
			return failStep(&a.out.Remote, err)
		}

		action, perr := c.askFailure(a, prompt.QuestionRemoteFailure, err)
		if perr != nil {
			return failStep(&a.out.Remote, backend.Classify(backend.Remote, "push", perr))
		}
		if action != ActionRetry {
			if action == ActionCancel {
				a.log.Info().Msg("Remote push cancelled, local copy kept")
			}
			return failStep(&a.out.Remote, err)
		}
	}
}

func (c *Coordinator) remoteTarget(a *attempt) (Remote, model.RemoteFileRef, error) {
	rc := a.cfg.Remote
	owner, repo, err := model.ParseRepo(rc.Repo)
	if err != nil {
		return nil, model.RemoteFileRef{}, backend.New(backend.Remote, backend.KindOther, "configure", err)
	}
	dir, err := model.CleanDir(rc.TargetDir)
	if err != nil {
		return nil, model.RemoteFileRef{}, backend.New(backend.Remote, backend.KindOther, "configure", err)
	}
	remote, err := c.newRemote(rc)
	if err != nil {
		return nil, model.RemoteFileRef{}, backend.Classify(backend.Remote, "configure", err)
	}
	return remote, model.RemoteFileRef{
		Owner:  owner,
		Repo:   repo,
		Branch: rc.Branch,
		Path:   path.Join(dir, a.name),
	}, nil
}

// push re-reads the local file and writes exactly those bytes, refetching
// the content hash once on a version conflict.
func (c *Coordinator) push(a *attempt, remote Remote, ref model.RemoteFileRef, message string) (model.RemoteFileRef, error) {
	data, err := c.local.Read(a.ctx, a.out.Target.DirectoryPath, a.name)
	if err != nil {
		return model.RemoteFileRef{}, backend.Classify(backend.Local, "reread", err)
	}

	for writes := 1; ; writes++ {
		current, err := remote.Fetch(a.ctx, ref)
		switch {
		case backend.Is(err, backend.KindNotFound):
			current = ref.WithHash("")
		case err != nil:
			return model.RemoteFileRef{}, backend.Classify(backend.Remote, "fetch", err)
		default:
			current = ref.WithHash(current.ContentHash)
		}

		metrics.RemoteWrites.Inc()
		pushed, err := remote.Put(a.ctx, current, data, message)
		if err == nil {
			return pushed, nil
		}
		if !backend.Is(err, backend.KindVersionConflict) || writes >= maxRemoteWrites {
			return model.RemoteFileRef{}, backend.Classify(backend.Remote, "put", err)
		}
		metrics.VersionConflicts.Inc()
		a.log.Info().Str("ref", ref.String()).Msg("Remote changed, refetching")
	}
}
