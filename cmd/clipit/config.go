package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clipit/internal/config"
	"clipit/internal/logging"
)

// loadSettings resolves settings for cmd and configures logging. daemon
// selects the info default level; other commands log warnings only unless
// asked.
func loadSettings(cmd *cobra.Command, daemon bool) (config.Settings, *viper.Viper, *slog.Logger, error) {
	v := viper.New()
	config.SetDefaults(v)
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Settings{}, nil, nil, err
	}

	file, _ := cmd.Flags().GetString("config")
	s, err := config.Load(v, file)
	if err != nil {
		return config.Settings{}, nil, nil, err
	}

	log := setupLogging(cmd.ErrOrStderr(), s, daemon)
	log.Debug("settings loaded", "data_dir", s.DataDir, "file", v.ConfigFileUsed())
	return s, v, log, nil
}

func setupLogging(w io.Writer, s config.Settings, daemon bool) *slog.Logger {
	fallback := slog.LevelWarn
	if daemon {
		fallback = slog.LevelInfo
	}
	return logging.Setup(w, s.LogFormat, s.LogLevel, fallback)
}
