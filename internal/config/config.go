package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure.
// It is loaded once and handed explicitly to whoever needs it.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Local     LocalConfig     `yaml:"local"`
	Remote    RemoteConfig    `yaml:"remote"`
	ImageHost ImageHostConfig `yaml:"image_host"`
	Draft     DraftConfig     `yaml:"draft"`
	Export    ExportConfig    `yaml:"export"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"127.0.0.1"`
	Port string `yaml:"port" default:"12601"`
	// AllowedOrigins may contain one "*" wildcard each.
	AllowedOrigins []string `yaml:"allowed_origins" default:"chrome-extension://*,http://localhost:*,http://127.0.0.1:*"`
}

// LocalConfig describes where documents land inside the granted directory.
type LocalConfig struct {
	// Root is an optional directory granted at startup, equivalent to `dailywrite grant <root>`.
	Root      string `yaml:"root" default:""`
	TargetDir string `yaml:"target_dir" default:"src/content/posts/dynamic/journals"`
	ImagesDir string `yaml:"images_dir" default:"images"`
}

type RemoteConfig struct {
	Enabled      bool          `yaml:"enabled" default:"false"`
	Repo         string        `yaml:"repo" default:""`
	Branch       string        `yaml:"branch" default:"main"`
	TargetDir    string        `yaml:"target_dir" default:"src/content/posts/dynamic/journals"`
	CommitPrefix string        `yaml:"commit_prefix" default:"dynamic:"`
	Token        string        `yaml:"token" default:""`
	APIBaseURL   string        `yaml:"api_base_url" default:"https://api.github.com"`
	Timeout      time.Duration `yaml:"timeout" default:"15s"`
}

type ImageHostConfig struct {
	// Kind selects the uploader: picgo or s3.
	Kind      string        `yaml:"kind" default:"picgo"`
	Endpoint  string        `yaml:"endpoint" default:""`
	Token     string        `yaml:"token" default:""`
	FieldName string        `yaml:"field_name" default:"file"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	S3        S3Config      `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" default:""`
	Region          string `yaml:"region" default:"auto"`
	Endpoint        string `yaml:"endpoint" default:""`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
	PublicBaseURL   string `yaml:"public_base_url" default:""`
	Prefix          string `yaml:"prefix" default:"images/"`
}

// Configured reports whether an image host is set up at all.
func (c ImageHostConfig) Configured() bool {
	switch c.Kind {
	case ImageHostS3:
		return c.S3.Bucket != ""
	default:
		return c.Endpoint != ""
	}
}

type DraftConfig struct {
	DBPath      string        `yaml:"db_path" default:"dailywrite.db"`
	ID          string        `yaml:"id" default:"default"`
	Debounce    time.Duration `yaml:"debounce" default:"1s"`
	Compression string        `yaml:"compression" default:"zstd"`
}

type ExportConfig struct {
	// Dir defaults to ~/Downloads, then the OS temp dir.
	Dir string `yaml:"dir" default:""`
}

const (
	ImageHostPicGo = "picgo"
	ImageHostS3    = "s3"
)

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	ApplyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if d, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(d))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
