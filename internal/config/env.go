package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Environment variables that override the file. Secrets are expected here
// rather than in config.yaml.
const (
	EnvLogLevel          = "DAILYWRITE_LOG_LEVEL"
	EnvRemoteEnabled     = "DAILYWRITE_REMOTE_ENABLED"
	EnvRemoteRepo        = "DAILYWRITE_REMOTE_REPO"
	EnvGitHubToken       = "DAILYWRITE_GITHUB_TOKEN"
	EnvImageHostEndpoint = "DAILYWRITE_IMAGE_HOST_ENDPOINT"
	EnvImageHostToken    = "DAILYWRITE_IMAGE_HOST_TOKEN"
	EnvS3AccessKeyID     = "DAILYWRITE_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "DAILYWRITE_S3_SECRET_ACCESS_KEY"
	EnvDraftDBPath       = "DAILYWRITE_DRAFT_DB"
)

// LoadDotEnv loads .env style files into the process environment.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			configLogger.Debug().Str("path", p).Msg("No env file")
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "failed to load env file %s", p)
		}
	}
	return nil
}

// ApplyEnv overlays environment values on cfg. lookup is os.LookupEnv in
// production and a map in tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvRemoteRepo, &cfg.Remote.Repo)
	str(EnvGitHubToken, &cfg.Remote.Token)
	if cfg.Remote.Token == "" {
		str("GITHUB_TOKEN", &cfg.Remote.Token)
	}
	str(EnvImageHostEndpoint, &cfg.ImageHost.Endpoint)
	str(EnvImageHostToken, &cfg.ImageHost.Token)
	str(EnvS3AccessKeyID, &cfg.ImageHost.S3.AccessKeyID)
	str(EnvS3SecretAccessKey, &cfg.ImageHost.S3.SecretAccessKey)
	str(EnvDraftDBPath, &cfg.Draft.DBPath)

	if v, ok := lookup(EnvRemoteEnabled); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Remote.Enabled = b
		} else {
			configLogger.Warn().Str("value", v).Msg("Ignoring non-boolean " + EnvRemoteEnabled)
		}
	}
}
