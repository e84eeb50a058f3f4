// Package export is the storage of last resort: it drops bytes into the
// user's downloads folder so nothing is ever lost.
package export

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/model"
)

var exportLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	exportLogger = l
}

type Exporter struct {
	dirs []string
}

// New exports into dir, falling back to ~/Downloads and then the OS temp
// directory when dir is empty or unwritable.
func New(dir string) *Exporter {
	var dirs []string
	if dir != "" {
		dirs = append(dirs, dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Downloads"))
	}
	dirs = append(dirs, os.TempDir())
	return &Exporter{dirs: dirs}
}

// Export writes data as name, adding " (n)" before the extension when the
// name is taken, and returns the absolute path written.
func (e *Exporter) Export(ctx context.Context, name string, data []byte) (string, error) {
	name, err := model.CleanName(name)
	if err != nil {
		return "", backend.New(backend.Export, backend.KindOther, "export", err)
	}

	var lastErr error
	for _, dir := range e.dirs {
		if err := ctx.Err(); err != nil {
			return "", backend.Classify(backend.Export, "export", err)
		}
		p, err := writeUnique(dir, name, data)
		if err == nil {
			exportLogger.Info().Str("path", p).Int("bytes", len(data)).Msg("Exported file")
			return p, nil
		}
		exportLogger.Warn().Err(err).Str("dir", dir).Msg("Export location unusable")
		lastErr = err
	}
	return "", backend.New(backend.Export, backend.KindOther, "export", lastErr)
}

func writeUnique(dir, name string, data []byte) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errors.Errorf("%s is not a directory", dir)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(p)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return p, nil
		}
		return abs, nil
	}
	return "", errors.Errorf("no free name for %s in %s", name, dir)
}

// FileURL turns an absolute path into a file:// URL usable as a reference.
func FileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
