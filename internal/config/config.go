// Package config loads clipit settings.
//
// Precedence (lowest to highest): defaults, settings file, CLIPIT_* env
// vars, command-line flags. The settings file is looked up as
// settings.{json,toml,yaml} in the data directory unless a path is given
// explicitly. A settings.json holding the retention defaults is created on
// first run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyDataDir      = "dataDir"
	KeyDaysToKeep   = "daysToKeep"
	KeyMaxItems     = "maxItems"
	KeyPollInterval = "pollInterval"
	KeyAPIAddr      = "apiAddr"
	KeyLogFormat    = "logFormat"
	KeyLogLevel     = "logLevel"
)

const (
	DefaultDaysToKeep   = 7
	DefaultMaxItems     = 100
	DefaultPollInterval = 10 * time.Millisecond
	DefaultAPIAddr      = "127.0.0.1:8765"

	settingsName = "settings"
	dbName       = "clipboard.db"
	imageDirName = "tmp"
	pidName      = "clipit.pid"
)

var ErrNoSettingsFile = errors.New("no settings file in use")

// Settings is the resolved configuration
type Settings struct {
	DataDir      string        `mapstructure:"dataDir"`
	DaysToKeep   int           `mapstructure:"daysToKeep"`
	MaxItems     int           `mapstructure:"maxItems"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	APIAddr      string        `mapstructure:"apiAddr"`
	LogFormat    string        `mapstructure:"logFormat"`
	LogLevel     string        `mapstructure:"logLevel"`
}

// DBPath is the SQLite database file
func (s Settings) DBPath() string { return filepath.Join(s.DataDir, dbName) }

// ImageDir is where captured images are cached
func (s Settings) ImageDir() string { return filepath.Join(s.DataDir, imageDirName) }

// PIDPath is the daemon's pid file
func (s Settings) PIDPath() string { return filepath.Join(s.DataDir, pidName) }

// DefaultDataDir returns ~/.ClipIT, falling back to the working directory
// when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ClipIT"
	}
	return filepath.Join(home, ".ClipIT")
}

// SetDefaults registers default values and env var names on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, DefaultDataDir())
	v.SetDefault(KeyDaysToKeep, DefaultDaysToKeep)
	v.SetDefault(KeyMaxItems, DefaultMaxItems)
	v.SetDefault(KeyPollInterval, DefaultPollInterval)
	v.SetDefault(KeyAPIAddr, DefaultAPIAddr)
	v.SetDefault(KeyLogFormat, "auto")
	v.SetDefault(KeyLogLevel, "")

	v.SetEnvPrefix("CLIPIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for key, env := range map[string]string{
		KeyDataDir:      "CLIPIT_DATA_DIR",
		KeyDaysToKeep:   "CLIPIT_DAYS_TO_KEEP",
		KeyMaxItems:     "CLIPIT_MAX_ITEMS",
		KeyPollInterval: "CLIPIT_POLL_INTERVAL",
		KeyAPIAddr:      "CLIPIT_API_ADDR",
		KeyLogFormat:    "CLIPIT_LOG_FORMAT",
		KeyLogLevel:     "CLIPIT_LOG_LEVEL",
	} {
		_ = v.BindEnv(key, env)
	}
}

// BindFlags maps kebab-case flags onto settings keys. Flags missing from
// fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range map[string]string{
		KeyDataDir:      "data-dir",
		KeyDaysToKeep:   "days-to-keep",
		KeyMaxItems:     "max-items",
		KeyPollInterval: "poll-interval",
		KeyAPIAddr:      "addr",
		KeyLogFormat:    "log-format",
		KeyLogLevel:     "log-level",
	} {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the settings file (if any) and resolves Settings. file
// overrides the lookup in the data directory.
func Load(v *viper.Viper, file string) (Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		dir := expandHome(v.GetString(KeyDataDir))
		v.SetConfigName(settingsName)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decoding settings: %w", err)
	}
	s.DataDir = expandHome(s.DataDir)
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.DaysToKeep < 0 {
		s.DaysToKeep = 0
	}
	if s.MaxItems < 0 {
		s.MaxItems = 0
	}
	return s, nil
}

// EnsureDirs creates the data and image cache directories
func EnsureDirs(s Settings) error {
	for _, dir := range []string{s.DataDir, s.ImageDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// WriteDefaults creates settings.json in the data directory with the
// retention defaults. An existing file is left alone.
func WriteDefaults(s Settings) (string, error) {
	path := filepath.Join(s.DataDir, settingsName+".json")

	w := viper.New()
	w.Set(KeyDaysToKeep, DefaultDaysToKeep)
	w.Set(KeyMaxItems, DefaultMaxItems)
	if err := w.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return path, nil
		}
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// Watch calls fn with the re-read settings each time the settings file
// changes. Edits that do not decode are logged and skipped. It returns
// ErrNoSettingsFile when Load found no file.
func Watch(v *viper.Viper, log *slog.Logger, fn func(Settings)) error {
	if v.ConfigFileUsed() == "" {
		return ErrNoSettingsFile
	}
	if log == nil {
		log = slog.Default()
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := decode(v)
		if err != nil {
			log.Warn("ignoring settings change", "file", e.Name, "err", err)
			return
		}
		fn(s)
	})
	v.WatchConfig()
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
