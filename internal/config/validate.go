package config

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/debemdeboas/dailywrite/internal/model"
)

var httpURL = regexp.MustCompile(`^https?://\S+$`)

func init() {
	// Report fields by their config file keys.
	validation.ErrorTag = "yaml"
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Local),
		validation.Field(&c.Remote),
		validation.Field(&c.ImageHost),
		validation.Field(&c.Draft),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Match(regexp.MustCompile(`^\d{1,5}$`))),
	)
}

func (l LocalConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.ImagesDir, validation.Required, validation.By(relativePath)),
		validation.Field(&l.TargetDir, validation.By(relativePath)),
	)
}

func (r RemoteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Repo, validation.When(r.Enabled, validation.Required, validation.By(repoIdentifier))),
		validation.Field(&r.Branch, validation.When(r.Enabled, validation.Required)),
		validation.Field(&r.Token, validation.When(r.Enabled, validation.Required)),
		validation.Field(&r.APIBaseURL, validation.Required, validation.Match(httpURL)),
		validation.Field(&r.TargetDir, validation.By(relativePath)),
		validation.Field(&r.Timeout, validation.Min(time.Second)),
	)
}

func (h ImageHostConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Kind, validation.Required, validation.In(ImageHostPicGo, ImageHostS3)),
		validation.Field(&h.Endpoint, validation.When(h.Endpoint != "", validation.Match(httpURL))),
		validation.Field(&h.Timeout, validation.Min(time.Second)),
		validation.Field(&h.S3),
	)
}

func (s S3Config) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.PublicBaseURL, validation.When(s.Bucket != "", validation.Required, validation.Match(httpURL))),
	)
}

func (d DraftConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.DBPath, validation.Required),
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Compression, validation.In("zstd", "gzip", "none")),
		validation.Field(&d.Debounce, validation.Min(time.Duration(0))),
	)
}

func repoIdentifier(value interface{}) error {
	s, _ := value.(string)
	if _, _, err := model.ParseRepo(s); err != nil {
		return validation.NewError("validation_repo", err.Error())
	}
	return nil
}

func relativePath(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := model.CleanDir(s); err != nil {
		return validation.NewError("validation_relative_path", err.Error())
	}
	return nil
}
