// Package imagehost uploads pasted images to an external host and returns
// the public URL to embed.
package imagehost

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/config"
)

var hostLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	hostLogger = l
}

type Uploader interface {
	// Upload stores data under name and returns an absolute URL.
	Upload(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// New builds the uploader selected by cfg, or nil when no host is configured.
func New(ctx context.Context, cfg config.ImageHostConfig) (Uploader, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	switch cfg.Kind {
	case config.ImageHostS3:
		s3, err := NewS3(ctx, cfg.S3, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return NewPicGo(cfg.Endpoint, cfg.Token, cfg.FieldName, cfg.Timeout), nil
	}
}

// FindURL returns the first http(s) URL in a decoded JSON document, looking
// at "url" keys before anything else at each level. Other keys are visited
// in sorted order.
func FindURL(v any) string {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
			return t
		}
	case []any:
		for _, item := range t {
			if u := FindURL(item); u != "" {
				return u
			}
		}
	case map[string]any:
		if u, ok := t["url"].(string); ok && FindURL(u) != "" {
			return u
		}
		for _, key := range []string{"data", "result"} {
			if u := FindURL(t[key]); u != "" {
				return u
			}
		}
		for _, k := range slices.Sorted(maps.Keys(t)) {
			if k == "url" || k == "data" || k == "result" {
				continue
			}
			if u := FindURL(t[k]); u != "" {
				return u
			}
		}
	}
	return ""
}
