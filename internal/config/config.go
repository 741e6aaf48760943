package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds packaging parameters shared by the packager and verifier binaries.
type Config struct {
	// PythonVersion is the interpreter version wheels are resolved for.
	PythonVersion string `yaml:"python_version"`
	// PipPlatform is the platform tag passed to pip download.
	PipPlatform string `yaml:"pip_platform"`
	// PipExecutable is the pip binary used for downloads and verification installs.
	PipExecutable string `yaml:"pip_executable"`
	// PythonExecutable is the interpreter used to create verification environments.
	PythonExecutable string `yaml:"python_executable"`
	// TargetRoot is the installation root on the target host, baked into update.sh.
	TargetRoot string `yaml:"target_root"`
	// ServiceEnvs overrides the virtualenv path for specific service directories.
	// Services not listed fall back to <target_root>/<service>/venv.
	ServiceEnvs map[string]string `yaml:"service_envs"`
	// StopServices lists the systemd units update.sh stops before syncing files.
	StopServices []string `yaml:"stop_services"`
	// ServiceOwner is the user:group ownership restored on the target root.
	ServiceOwner string `yaml:"service_owner"`
	// ArchivePrefix is the leading component of produced archive names.
	ArchivePrefix string `yaml:"archive_prefix"`
	// DistignoreFile is the name of the packaging exclusion file at the repo root.
	DistignoreFile string `yaml:"distignore_file"`
	// DownloadRetries is how many times a failed wheel download is retried.
	DownloadRetries int `yaml:"download_retries"`
	// RetryBackoff is the pause between download retries.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

const (
	// DefaultConfigFilename is the default filename for packaging settings.
	DefaultConfigFilename = "update-packager.yaml"

	// DefaultPythonVersion matches the interpreter deployed on target hosts.
	DefaultPythonVersion = "3.10"

	// DefaultPipPlatform is the wheel platform tag for target hosts.
	DefaultPipPlatform = "manylinux2014_x86_64"

	// DefaultTargetRoot is the installation root baked into generated scripts.
	DefaultTargetRoot = "/opt/itg"

	// DefaultServiceOwner is the ownership restored after installation.
	DefaultServiceOwner = "itg:itg"

	// DefaultArchivePrefix is the leading component of archive names.
	DefaultArchivePrefix = "ITG"

	// DefaultDistignoreFile is the packaging exclusion file name.
	DefaultDistignoreFile = ".distignore"

	// DefaultDownloadRetries bounds retry attempts against the package index.
	DefaultDownloadRetries = 3

	// DefaultRetryBackoff is the pause between download retries.
	DefaultRetryBackoff = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errTargetRootRelative is returned when the target root is not absolute.
	errTargetRootRelative = errors.New("target root must be an absolute path")
	// errInvalidOwner is returned when the service owner is not user:group.
	errInvalidOwner = errors.New("service owner must be in user:group form")
)

// Load reads configuration from the provided path and applies defaults.
// A missing file is not an error: packaging works with pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := new(Config)
			if err = Validate(cfg); err != nil {
				return nil, err
			}

			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the provided settings for obvious mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.PythonVersion == "" {
		cfg.PythonVersion = DefaultPythonVersion
	}

	if cfg.PipPlatform == "" {
		cfg.PipPlatform = DefaultPipPlatform
	}

	if cfg.PipExecutable == "" {
		cfg.PipExecutable = "pip"
	}

	if cfg.PythonExecutable == "" {
		cfg.PythonExecutable = "python3"
	}

	if cfg.TargetRoot == "" {
		cfg.TargetRoot = DefaultTargetRoot
	}

	if !strings.HasPrefix(cfg.TargetRoot, "/") {
		return fmt.Errorf("%s: %w", cfg.TargetRoot, errTargetRootRelative)
	}

	if cfg.ServiceOwner == "" {
		cfg.ServiceOwner = DefaultServiceOwner
	}

	parts := strings.Split(cfg.ServiceOwner, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%s: %w", cfg.ServiceOwner, errInvalidOwner)
	}

	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = DefaultArchivePrefix
	}

	if cfg.DistignoreFile == "" {
		cfg.DistignoreFile = DefaultDistignoreFile
	}

	if cfg.DownloadRetries <= 0 {
		cfg.DownloadRetries = DefaultDownloadRetries
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	return nil
}

// EnvPath returns the virtualenv path for a service directory,
// honoring per-service overrides from the configuration.
func (c *Config) EnvPath(serviceDir string) string {
	if path, ok := c.ServiceEnvs[serviceDir]; ok {
		return path
	}

	return filepath.Join(c.TargetRoot, serviceDir, "venv")
}
