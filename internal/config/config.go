package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/deploymenttheory/go-backup-mapper/internal/common/fsutil"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "backup-mapper"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "BACKUP_MAPPER"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Backup decoding settings
	Backup struct {
		PasswordFile     string `mapstructure:"password_file"`
		TempDir          string `mapstructure:"temp_dir"`
		ProgressInterval int    `mapstructure:"progress_interval"`
	} `mapstructure:"backup"`

	// Filesystem acquisition settings
	Filesystem struct {
		PlatformDetectLimit int `mapstructure:"platform_detect_limit"`
		ProgressInterval    int `mapstructure:"progress_interval"`
	} `mapstructure:"filesystem"`

	// Report settings
	Report struct {
		ListLimit     int    `mapstructure:"list_limit"`
		HashAlgorithm string `mapstructure:"hash_algorithm"`
	} `mapstructure:"report"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	v *viper.Viper

	initOnce sync.Once
)

// Initialize sets up the configuration system
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		v = viper.New()
		setDefaults(v)

		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else {
			v.SetConfigName(AppName)
			v.SetConfigType("yaml")
			addSearchPaths(v)
		}

		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("error reading config file: %w", readErr)
			}
			ConfigLoaded = false
			ConfigFile = ""
		} else {
			ConfigLoaded = true
			ConfigFile = v.ConfigFileUsed()
		}

		if unmarshalErr := v.Unmarshal(&Instance); unmarshalErr != nil {
			err = fmt.Errorf("%w: %v", commonerrors.ErrConfigParseError, unmarshalErr)
			return
		}

		if validateErr := validate(&Instance); validateErr != nil {
			err = validateErr
		}
	})

	return err
}

// Viper returns the underlying viper instance so commands can bind their flags.
// It returns nil before Initialize.
func Viper() *viper.Viper {
	return v
}

// Refresh re-reads Instance from viper after flags have been bound
func Refresh() error {
	if v == nil {
		return fmt.Errorf("configuration not initialized")
	}
	if err := v.Unmarshal(&Instance); err != nil {
		return fmt.Errorf("%w: %v", commonerrors.ErrConfigParseError, err)
	}
	return validate(&Instance)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")

	v.SetDefault("backup.password_file", fsutil.DefaultPasswordFile)
	v.SetDefault("backup.temp_dir", os.TempDir())
	v.SetDefault("backup.progress_interval", 500)

	v.SetDefault("filesystem.platform_detect_limit", 5000)
	v.SetDefault("filesystem.progress_interval", 1000)

	v.SetDefault("report.list_limit", 100)
	v.SetDefault("report.hash_algorithm", "sha256")
}

func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")

	if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(fsutil.GetSystemConfigDir(AppName))
}

func validate(c *AppConfig) error {
	switch c.LogFormat {
	case "json", "human":
	default:
		return fmt.Errorf("%w: log_format %q: must be json or human", commonerrors.ErrConfigInvalid, c.LogFormat)
	}
	if c.Backup.ProgressInterval <= 0 {
		return fmt.Errorf("%w: backup.progress_interval must be positive, got %d", commonerrors.ErrConfigInvalid, c.Backup.ProgressInterval)
	}
	if c.Filesystem.PlatformDetectLimit <= 0 {
		return fmt.Errorf("%w: filesystem.platform_detect_limit must be positive, got %d", commonerrors.ErrConfigInvalid, c.Filesystem.PlatformDetectLimit)
	}
	if c.Filesystem.ProgressInterval <= 0 {
		return fmt.Errorf("%w: filesystem.progress_interval must be positive, got %d", commonerrors.ErrConfigInvalid, c.Filesystem.ProgressInterval)
	}
	if c.Report.ListLimit < 0 {
		return fmt.Errorf("%w: report.list_limit must not be negative, got %d", commonerrors.ErrConfigInvalid, c.Report.ListLimit)
	}
	if _, err := cryptoutil.NewHasher(cryptoutil.HashAlgorithm(c.Report.HashAlgorithm)); err != nil {
		return fmt.Errorf("%w: report.hash_algorithm %q", commonerrors.ErrConfigInvalid, c.Report.HashAlgorithm)
	}
	return nil
}
