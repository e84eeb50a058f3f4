// Package app wires the storage backends and coordinators together from a
// loaded config. The HTTP server and the CLI share it.
package app

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/asset"
	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/db"
	"github.com/debemdeboas/dailywrite/internal/draft"
	"github.com/debemdeboas/dailywrite/internal/logger"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/publish"
	"github.com/debemdeboas/dailywrite/internal/render"
	"github.com/debemdeboas/dailywrite/internal/repository/export"
	"github.com/debemdeboas/dailywrite/internal/repository/github"
	"github.com/debemdeboas/dailywrite/internal/repository/imagehost"
	"github.com/debemdeboas/dailywrite/internal/repository/localdir"
	"github.com/debemdeboas/dailywrite/internal/util/compression"
)

var appLogger zerolog.Logger

// SetLoggers hands every package a component logger derived from l.
func SetLoggers(l zerolog.Logger) {
	appLogger = logger.Component(l, "app")
	config.SetLogger(logger.Component(l, "config"))
	db.SetLogger(logger.Component(l, "db"))
	draft.SetLogger(logger.Component(l, "draft"))
	localdir.SetLogger(logger.Component(l, "localdir"))
	github.SetLogger(logger.Component(l, "github"))
	imagehost.SetLogger(logger.Component(l, "imagehost"))
	export.SetLogger(logger.Component(l, "export"))
	publish.SetLogger(logger.Component(l, "publish"))
	asset.SetLogger(logger.Component(l, "asset"))
	render.SetLogger(logger.Component(l, "render"))
}

// DetectDepth bounds the directory walk after a grant.
const DetectDepth = 3

type App struct {
	DB        db.DB
	Session   *draft.Session
	Local     *localdir.Store
	Exporter  *export.Exporter
	Publisher *publish.Coordinator
	Assets    *asset.Coordinator
	History   *publish.SQLHistory

	mu  sync.RWMutex
	cfg config.Config
}

// New opens the database, restores the draft and the directory grant, and
// builds the coordinators.
func New(ctx context.Context, cfg *config.Config, localOpts ...localdir.Option) (*App, error) {
	database := db.NewSQLite(cfg.Draft.DBPath)
	if err := database.InitDB(); err != nil {
		return nil, errors.Wrapf(err, config.ErrInitializeDatabaseFmt, cfg.Draft.DBPath)
	}

	codec, err := compression.For(cfg.Draft.Compression)
	if err != nil {
		database.Close()
		return nil, err
	}
	session, err := draft.Open(draft.NewSQLRepository(database, codec), draft.ID(cfg.Draft.ID), cfg.Draft.Debounce)
	if err != nil {
		database.Close()
		return nil, errors.Wrapf(err, config.ErrOpenDraftFmt, cfg.Draft.ID)
	}

	a := &App{
		DB:       database,
		Session:  session,
		Local:    localdir.New(localdir.NewSQLGrants(database), localOpts...),
		Exporter: export.New(cfg.Export.Dir),
		History:  publish.NewSQLHistory(database),
		cfg:      *cfg,
	}
	a.Publisher = publish.New(a.Local, a.Exporter, a.Session, publish.WithHistory(a.History))
	a.Assets = asset.New(a.Local, a.Exporter, a.Session)

	if err := a.Local.Restore(ctx); err != nil {
		appLogger.Warn().Err(err).Msgf(config.ErrRestoreGrantFmt, err)
	}
	if _, granted := a.Local.Root(); !granted && cfg.Local.Root != "" {
		if _, err := a.Grant(ctx, cfg.Local.Root); err != nil {
			appLogger.Warn().Err(err).Str("root", cfg.Local.Root).Msg("Configured root could not be granted")
		}
	}
	return a, nil
}

// Config returns a copy of the settings currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c := a.cfg
	return &c
}

// Grant makes dir the documents directory and points the target directory
// at wherever journals already live inside it.
func (a *App) Grant(ctx context.Context, dir string) (string, error) {
	if err := a.Local.Grant(ctx, dir); err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	target, err := a.Local.DetectTargetDir(ctx, a.cfg.Local.TargetDir, nil, DetectDepth)
	if err != nil {
		appLogger.Warn().Err(err).Msg("Target directory detection failed")
		return a.cfg.Local.TargetDir, nil
	}
	if target != a.cfg.Local.TargetDir {
		appLogger.Info().Str("from", a.cfg.Local.TargetDir).Str("to", target).Msg("Using detected target directory")
		a.cfg.Local.TargetDir = target
	}
	return target, nil
}

// Revoke forgets the granted directory.
func (a *App) Revoke() error {
	return a.Local.Revoke()
}

// CheckRemote verifies that the configured repository is reachable with the
// configured token.
func (a *App) CheckRemote(ctx context.Context) error {
	rc := a.Config().Remote
	if !rc.Enabled {
		return backend.Errorf(backend.Remote, backend.KindOther, "check", "remote publishing is disabled")
	}
	owner, repo, err := model.ParseRepo(rc.Repo)
	if err != nil {
		return backend.New(backend.Remote, backend.KindOther, "check", err)
	}
	if err := github.New(rc.APIBaseURL, rc.Token, rc.Timeout).Ping(ctx, owner, repo); err != nil {
		return err
	}
	appLogger.Info().Str("repo", owner+"/"+repo).Msg("Remote repository reachable")
	return nil
}

func (a *App) Publish(ctx context.Context, p prompt.Prompter) (model.PublishOutcome, error) {
	return a.Publisher.Publish(ctx, p, a.Session.Text(), a.Config())
}

func (a *App) Paste(ctx context.Context, p prompt.Prompter, blob model.Blob, interactive bool) (model.AssetPlacement, error) {
	return a.Assets.Place(ctx, p, blob, a.Config(), interactive)
}

func (a *App) Close() error {
	var errs []error
	if err := a.Session.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Local.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Wrapf(errs[0], "close (%d errors)", len(errs))
	}
	return nil
}
