// Package asset decides where a pasted image is stored and inserts a
// reference to it into the document.
package asset

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
	"github.com/debemdeboas/dailywrite/internal/metrics"
	"github.com/debemdeboas/dailywrite/internal/model"
	"github.com/debemdeboas/dailywrite/internal/prompt"
	"github.com/debemdeboas/dailywrite/internal/repository/export"
	"github.com/debemdeboas/dailywrite/internal/repository/imagehost"
)

var assetLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	assetLogger = l
}

// ErrAbandoned means not even the export fallback could store the image.
var ErrAbandoned = errors.New("image could not be stored")

// errSkipped marks a backend that is not usable right now and was not tried.
var errSkipped = errors.New("backend skipped")

type Local interface {
	Root() (string, bool)
	Write(ctx context.Context, dir, name string, data []byte) (string, error)
	Grant(ctx context.Context, dir string) error
}

type Exporter interface {
	Export(ctx context.Context, name string, data []byte) (string, error)
}

// Document receives the Markdown snippet of a successful placement.
type Document interface {
	InsertAtCursor(snippet string)
}

type HostFactory func(ctx context.Context, cfg config.ImageHostConfig) (imagehost.Uploader, error)

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithHostFactory(f HostFactory) Option {
	return func(c *Coordinator) { c.newHost = f }
}

// Coordinator places one image at a time. Names generated within the same
// second get -2, -3 suffixes.
type Coordinator struct {
	local    Local
	exporter Exporter
	doc      Document
	newHost  HostFactory
	now      func() time.Time

	mu    sync.Mutex
	stamp string
	taken map[string]bool
}

func New(local Local, exporter Exporter, doc Document, opts ...Option) *Coordinator {
	c := &Coordinator{
		local:    local,
		exporter: exporter,
		doc:      doc,
		newHost:  imagehost.New,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var backendLabels = map[model.AssetBackend]string{
	model.BackendImageHost: "Upload to the image host",
	model.BackendLocal:     "Save into the local images folder",
	model.BackendExport:    "Save to downloads",
}

// Place stores blob on the first backend that accepts it: the image host,
// then the images folder of the granted directory, then the export
// directory. When interactive, every failure asks p which of the remaining
// backends to try next and a missing grant asks for a directory. The
// reference is inserted into the document on success.
func (c *Coordinator) Place(ctx context.Context, p prompt.Prompter, blob model.Blob, cfg *config.Config, interactive bool) (model.AssetPlacement, error) {
	if len(blob.Data) == 0 {
		return model.AssetPlacement{}, backend.Errorf(backend.Local, backend.KindEmptyInput, "place", "image %q is empty", blob.Name)
	}
	if p == nil {
		interactive = false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	placement := model.AssetPlacement{
		SourceName:    blob.Name,
		GeneratedName: c.reserve(model.ImageName(c.now(), blob.Name, blob.MIME)),
	}
	log := assetLogger.With().Str("image", placement.GeneratedName).Bool("interactive", interactive).Logger()

	var remaining []model.AssetBackend
	if cfg.ImageHost.Configured() {
		remaining = append(remaining, model.BackendImageHost)
	}
	if _, granted := c.local.Root(); granted || interactive {
		remaining = append(remaining, model.BackendLocal)
	}

	for len(remaining) > 0 {
		b := remaining[0]
		remaining = remaining[1:]

		ref, err := c.try(ctx, p, b, placement.GeneratedName, blob, cfg, interactive)
		if err == nil {
			return c.placed(p, placement, b, ref), nil
		}
		if errors.Is(err, errSkipped) {
			log.Debug().Str("backend", string(b)).Msg("Backend not available")
			continue
		}
		log.Warn().Err(err).Str("backend", string(b)).Msg("Image placement failed")
		if ctx.Err() != nil || !interactive {
			continue
		}

		next, err := c.askNext(ctx, p, err, remaining)
		if err != nil {
			log.Warn().Err(err).Msg("Prompt failed, falling back to export")
			break
		}
		if next == model.BackendExport {
			break
		}
		remaining = moveFirst(remaining, next)
	}

	exported, err := c.exporter.Export(context.WithoutCancel(ctx), placement.GeneratedName, blob.Data)
	if err != nil {
		log.Error().Err(err).Msg("Image abandoned")
		return placement, errors.Wrap(ErrAbandoned, backend.Describe(err))
	}
	return c.placed(p, placement, model.BackendExport, export.FileURL(exported)), nil
}

func (c *Coordinator) try(ctx context.Context, p prompt.Prompter, b model.AssetBackend, name string, blob model.Blob, cfg *config.Config, interactive bool) (string, error) {
	switch b {
	case model.BackendImageHost:
		host, err := c.newHost(ctx, cfg.ImageHost)
		if err != nil {
			return "", backend.Classify(backend.ImageHost, "configure", err)
		}
		if host == nil {
			return "", errSkipped
		}
		return host.Upload(ctx, name, blob.MIME, blob.Data)

	case model.BackendLocal:
		if _, ok := c.local.Root(); !ok {
			if !interactive {
				return "", errSkipped
			}
			if err := c.selectDirectory(ctx, p); err != nil {
				return "", err
			}
		}
		dir := path.Join(cfg.Local.TargetDir, cfg.Local.ImagesDir)
		if _, err := c.local.Write(ctx, dir, name, blob.Data); err != nil {
			return "", err
		}
		return "./" + path.Join(cfg.Local.ImagesDir, name), nil
	}
	return "", errSkipped
}

func (c *Coordinator) selectDirectory(ctx context.Context, p prompt.Prompter) error {
	dir, ok, err := p.Input(ctx, prompt.QuestionDirectory, "Choose a folder", "Directory to save images in", "")
	if err != nil {
		return err
	}
	dir = strings.TrimSpace(dir)
	if !ok || dir == "" {
		return backend.Errorf(backend.Local, backend.KindNoGrant, "place", "no directory selected")
	}
	return c.local.Grant(ctx, dir)
}

// askNext offers the remaining backends plus export. Dismissal is export.
func (c *Coordinator) askNext(ctx context.Context, p prompt.Prompter, cause error, remaining []model.AssetBackend) (model.AssetBackend, error) {
	opts := make([]prompt.Option, 0, len(remaining)+1)
	for _, b := range remaining {
		opts = append(opts, prompt.Option{Key: string(b), Label: backendLabels[b]})
	}
	opts = append(opts, prompt.Option{Key: string(model.BackendExport), Label: backendLabels[model.BackendExport]})
	key, err := p.Choose(ctx, prompt.Question{
		ID:      prompt.QuestionAssetFailure,
		Title:   "Image could not be saved",
		Body:    backend.Describe(cause),
		Options: opts,
	})
	if err != nil {
		return model.BackendExport, err
	}
	if key == "" {
		return model.BackendExport, nil
	}
	return model.AssetBackend(key), nil
}

func (c *Coordinator) placed(p prompt.Prompter, pl model.AssetPlacement, b model.AssetBackend, ref string) model.AssetPlacement {
	pl.Backend = b
	pl.Reference = ref
	if c.doc != nil {
		c.doc.InsertAtCursor(pl.Markdown())
	}
	metrics.AssetPlacements.WithLabelValues(string(b)).Inc()
	assetLogger.Info().Str("image", pl.GeneratedName).Str("backend", string(b)).Str("ref", ref).Msg("Image placed")
	if p != nil && b == model.BackendExport {
		p.Notify(prompt.LevelWarn, fmt.Sprintf("Image saved to %s", ref))
	}
	return pl
}

// reserve returns name, or name with a numeric suffix if it was already
// handed out for the same timestamp.
func (c *Coordinator) reserve(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem != c.stamp {
		c.stamp = stem
		c.taken = map[string]bool{}
	}
	candidate := name
	for i := 2; c.taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	c.taken[candidate] = true
	return candidate
}

func moveFirst(list []model.AssetBackend, b model.AssetBackend) []model.AssetBackend {
	out := []model.AssetBackend{b}
	for _, x := range list {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}
