// Package model holds the values passed between the publish and asset
// coordinators and the storage backends.
package model

import (
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DateLayout  = "2006-01-02"
	StampLayout = "2006-01-02-150405"

	DocumentExt = ".md"
	DefaultExt  = ".png"
)

// TargetName is where a publish attempt writes the document. It is derived
// from the local date when the attempt starts and never cached across attempts.
type TargetName struct {
	BaseName      string `json:"base_name"`
	DirectoryPath string `json:"directory_path"`
}

func NewTargetName(now time.Time, dir string) TargetName {
	return TargetName{BaseName: DocumentName(now), DirectoryPath: dir}
}

// Path joins the directory and base name with forward slashes.
func (t TargetName) Path() string {
	if t.DirectoryPath == "" {
		return t.BaseName
	}
	return path.Join(t.DirectoryPath, t.BaseName)
}

func (t TargetName) WithBase(name string) TargetName {
	t.BaseName = name
	return t
}

// DocumentName is YYYY-MM-DD.md for the local date of now.
func DocumentName(now time.Time) string {
	return now.Format(DateLayout) + DocumentExt
}

// SuggestedNewFileName is offered when the user keeps both files.
func SuggestedNewFileName(now time.Time) string {
	return now.Format(StampLayout) + DocumentExt
}

// ImageName is YYYY-MM-DD-HHMMSS.<ext>.
func ImageName(now time.Time, sourceName, mimeType string) string {
	return now.Format(StampLayout) + ImageExt(sourceName, mimeType)
}

var mimeExt = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
	"image/bmp":     ".bmp",
}

// ImageExt picks the extension from the MIME type, then from a recognised
// image extension on the source name, then falls back to .png.
func ImageExt(sourceName, mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		if ext, ok := mimeExt[strings.ToLower(mt)]; ok {
			return ext
		}
	}

	ext := strings.ToLower(filepath.Ext(sourceName))
	for _, known := range mimeExt {
		if ext == known {
			return ext
		}
	}
	if ext == ".jpeg" {
		return ".jpg"
	}
	return DefaultExt
}

// CleanDir normalises a slash separated relative directory. The empty string
// is the root. Absolute paths and parent segments are rejected.
func CleanDir(dir string) (string, error) {
	dir = strings.ReplaceAll(strings.TrimSpace(dir), "\\", "/")
	if strings.HasPrefix(dir, "/") {
		return "", errors.Errorf("directory %q must be relative", dir)
	}

	var segments []string
	for _, seg := range strings.Split(dir, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", errors.Errorf("directory %q escapes the granted root", dir)
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/"), nil
}

// CleanName validates a single file name.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "", name == ".", name == "..":
		return "", errors.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, `/\`):
		return "", errors.Errorf("file name %q must not contain a path separator", name)
	}
	return name, nil
}
