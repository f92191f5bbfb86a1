package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/spf13/viper"
)

const (
	BackendDrive = "drive"
	BackendS3    = "s3"
	BackendLocal = "local"

	EnvPrefix = "BISYNC"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".bisync")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogDir     = filepath.Join(DefaultConfigDir, "logs")
	DefaultLocalRoot  = "~/Bisync"
	DefaultStoreDir   = filepath.Join(DefaultConfigDir, "store")

	DefaultMetadataFileName = ".bisync-metadata.json"
	DefaultRemoteRootID     = "root"
)

// ErrConfiguration is the sentinel for every startup-fatal configuration problem
var ErrConfiguration = errors.New("configuration error")

// Error describes a single invalid configuration field
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid config %q: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrConfiguration
}

type DriveConfig struct {
	TokenFile       string `json:"token_file" yaml:"token_file"`
	// CredentialsFile is the OAuth client secret used by `bisync auth`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	BaseURL         string `json:"base_url" yaml:"base_url"`
	UploadURL       string `json:"upload_url" yaml:"upload_url"`
}

type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	AccessKey    string `json:"access_key" yaml:"access_key"`
	SecretKey    string `json:"secret_key" yaml:"secret_key"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

type LocalStoreConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type RetryConfig struct {
	NetworkDelayMs int `json:"network_delay_ms" yaml:"network_delay_ms"`
	DelayMs        int `json:"delay_ms" yaml:"delay_ms"`
	MaxAttempts    int `json:"max_attempts" yaml:"max_attempts"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Token   string `json:"token" yaml:"token"`
}

type Config struct {
	Path string `json:"-" yaml:"-"`

	LocalRoot          string   `json:"local_root" yaml:"local_root"`
	RemoteRootID       string   `json:"remote_root_id" yaml:"remote_root_id"`
	Ignore             []string `json:"ignore" yaml:"ignore"`
	MetadataFileName   string   `json:"metadata_file_name" yaml:"metadata_file_name"`
	DebounceDelayMs    int      `json:"debounce_delay_ms" yaml:"debounce_delay_ms"`
	PeriodicIntervalMs int      `json:"periodic_interval_ms" yaml:"periodic_interval_ms"`
	PropagateDeletes   bool     `json:"propagate_deletes" yaml:"propagate_deletes"`
	ScanConcurrency    int      `json:"scan_concurrency" yaml:"scan_concurrency"`
	TaskConcurrency    int      `json:"task_concurrency" yaml:"task_concurrency"`
	LogDir             string   `json:"log_dir" yaml:"log_dir"`

	Backend    string           `json:"backend" yaml:"backend"`
	Drive      DriveConfig      `json:"drive" yaml:"drive"`
	S3         S3Config         `json:"s3" yaml:"s3"`
	LocalStore LocalStoreConfig `json:"local_store" yaml:"local_store"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	HTTP       HTTPConfig       `json:"http" yaml:"http"`

	// BackendIsDefault is set when no file, env var or flag chose the backend
	BackendIsDefault bool `json:"-" yaml:"-"`

	ignorePatterns []*regexp.Regexp
}

// SetDefaults registers every key with its default so env vars bind even when
// the config file omits them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("local_root", DefaultLocalRoot)
	v.SetDefault("remote_root_id", DefaultRemoteRootID)
	v.SetDefault("ignore", []string{})
	v.SetDefault("metadata_file_name", DefaultMetadataFileName)
	v.SetDefault("debounce_delay_ms", 5000)
	v.SetDefault("periodic_interval_ms", 60000)
	v.SetDefault("propagate_deletes", false)
	v.SetDefault("scan_concurrency", 8)
	v.SetDefault("task_concurrency", 0)
	v.SetDefault("log_dir", DefaultLogDir)

	// empty means not configured; FromViper falls back to BackendLocal
	v.SetDefault("backend", "")
	v.SetDefault("drive.token_file", filepath.Join(DefaultConfigDir, "token.json"))
	v.SetDefault("drive.credentials_file", filepath.Join(DefaultConfigDir, "credentials.json"))
	v.SetDefault("drive.base_url", "https://www.googleapis.com/drive/v3")
	v.SetDefault("drive.upload_url", "https://www.googleapis.com/upload/drive/v3")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_path_style", false)
	v.SetDefault("local_store.dir", DefaultStoreDir)

	v.SetDefault("retry.network_delay_ms", 10000)
	v.SetDefault("retry.delay_ms", 1000)
	v.SetDefault("retry.max_attempts", 100)

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", "127.0.0.1:7939")
	v.SetDefault("http.token", "")
}

// ReadFile loads path into v. A missing or unparseable file is not an error:
// the defaults stay in effect and a warning is logged.
func ReadFile(v *viper.Viper, path string) {
	if path == "" {
		path = DefaultConfigPath
	}
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			slog.Warn("config file not found, using defaults", "path", path)
		} else {
			slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		}
	}
}

// BindEnv makes BISYNC_LOCAL_ROOT, BISYNC_S3_BUCKET, ... override file values.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper builds a Config from the current viper state. It does not validate.
func FromViper(v *viper.Viper) *Config {
	backend := strings.ToLower(strings.TrimSpace(v.GetString("backend")))
	backendIsDefault := backend == ""
	if backendIsDefault {
		backend = BackendLocal
	}

	return &Config{
		Path:               v.ConfigFileUsed(),
		LocalRoot:          v.GetString("local_root"),
		RemoteRootID:       v.GetString("remote_root_id"),
		Ignore:             v.GetStringSlice("ignore"),
		MetadataFileName:   v.GetString("metadata_file_name"),
		DebounceDelayMs:    v.GetInt("debounce_delay_ms"),
		PeriodicIntervalMs: v.GetInt("periodic_interval_ms"),
		PropagateDeletes:   v.GetBool("propagate_deletes"),
		ScanConcurrency:    v.GetInt("scan_concurrency"),
		TaskConcurrency:    v.GetInt("task_concurrency"),
		LogDir:             v.GetString("log_dir"),
		Backend:            backend,
		BackendIsDefault:   backendIsDefault,
		Drive: DriveConfig{
			TokenFile:       v.GetString("drive.token_file"),
			CredentialsFile: v.GetString("drive.credentials_file"),
			BaseURL:         v.GetString("drive.base_url"),
			UploadURL:       v.GetString("drive.upload_url"),
		},
		S3: S3Config{
			Bucket:       v.GetString("s3.bucket"),
			Region:       v.GetString("s3.region"),
			Endpoint:     v.GetString("s3.endpoint"),
			AccessKey:    v.GetString("s3.access_key"),
			SecretKey:    v.GetString("s3.secret_key"),
			UsePathStyle: v.GetBool("s3.use_path_style"),
		},
		LocalStore: LocalStoreConfig{
			Dir: v.GetString("local_store.dir"),
		},
		Retry: RetryConfig{
			NetworkDelayMs: v.GetInt("retry.network_delay_ms"),
			DelayMs:        v.GetInt("retry.delay_ms"),
			MaxAttempts:    v.GetInt("retry.max_attempts"),
		},
		HTTP: HTTPConfig{
			Enabled: v.GetBool("http.enabled"),
			Addr:    v.GetString("http.addr"),
			Token:   v.GetString("http.token"),
		},
	}
}

// Load is ReadFile + BindEnv + FromViper + Validate
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	ReadFile(v, path)
	BindEnv(v)

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate resolves paths, compiles ignore patterns and checks the backend settings.
func (c *Config) Validate() error {
	var err error

	c.LocalRoot, err = utils.ResolvePath(c.LocalRoot)
	if err != nil {
		return &Error{Field: "local_root", Reason: err.Error()}
	}

	if strings.TrimSpace(c.RemoteRootID) == "" {
		return &Error{Field: "remote_root_id", Reason: "must not be empty"}
	}

	if c.MetadataFileName == "" || strings.ContainsAny(c.MetadataFileName, `/\`) {
		return &Error{Field: "metadata_file_name", Reason: "must be a plain file name"}
	}

	if c.DebounceDelayMs < 0 {
		return &Error{Field: "debounce_delay_ms", Reason: "must not be negative"}
	}
	if c.PeriodicIntervalMs <= 0 {
		return &Error{Field: "periodic_interval_ms", Reason: "must be positive"}
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = 1
	}
	if c.Retry.MaxAttempts <= 0 {
		return &Error{Field: "retry.max_attempts", Reason: "must be positive"}
	}

	c.ignorePatterns = c.ignorePatterns[:0]
	for _, pattern := range c.Ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &Error{Field: "ignore", Reason: fmt.Sprintf("pattern %q: %v", pattern, err)}
		}
		c.ignorePatterns = append(c.ignorePatterns, re)
	}

	if c.LogDir != "" {
		if c.LogDir, err = utils.ResolvePath(c.LogDir); err != nil {
			return &Error{Field: "log_dir", Reason: err.Error()}
		}
	}

	switch c.Backend {
	case BackendDrive:
		if c.Drive.BaseURL == "" || c.Drive.UploadURL == "" {
			return &Error{Field: "drive", Reason: "base_url and upload_url are required"}
		}
		if c.Drive.TokenFile != "" {
			if c.Drive.TokenFile, err = utils.ResolvePath(c.Drive.TokenFile); err != nil {
				return &Error{Field: "drive.token_file", Reason: err.Error()}
			}
		}
		if c.Drive.CredentialsFile != "" {
			if c.Drive.CredentialsFile, err = utils.ResolvePath(c.Drive.CredentialsFile); err != nil {
				return &Error{Field: "drive.credentials_file", Reason: err.Error()}
			}
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return &Error{Field: "s3.bucket", Reason: "must not be empty"}
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return &Error{Field: "s3", Reason: "access_key and secret_key must be set together"}
		}
	case BackendLocal:
		if c.LocalStore.Dir, err = utils.ResolvePath(c.LocalStore.Dir); err != nil {
			return &Error{Field: "local_store.dir", Reason: err.Error()}
		}
	default:
		return &Error{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}

	return nil
}

// IgnorePatterns returns the compiled ignore list. Valid after Validate.
func (c *Config) IgnorePatterns() []*regexp.Regexp {
	return c.ignorePatterns
}

func (c *Config) MetadataPath() string {
	return filepath.Join(c.LocalRoot, c.MetadataFileName)
}

func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceDelayMs) * time.Millisecond
}

func (c *Config) PeriodicInterval() time.Duration {
	return time.Duration(c.PeriodicIntervalMs) * time.Millisecond
}

func (c *Config) NetworkRetryDelay() time.Duration {
	return time.Duration(c.Retry.NetworkDelayMs) * time.Millisecond
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMs) * time.Millisecond
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Ignore = append([]string(nil), c.Ignore...)
	cp.S3.AccessKey = utils.MaskSecret(c.S3.AccessKey)
	cp.S3.SecretKey = utils.MaskSecret(c.S3.SecretKey)
	cp.HTTP.Token = utils.MaskSecret(c.HTTP.Token)
	cp.ignorePatterns = nil
	return &cp
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
