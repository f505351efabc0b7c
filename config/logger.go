package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger configures the standard logrus logger from cfg.Log.
func InitLogger(cfg *Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.Warnf("Invalid log level '%s', using 'info'", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	if cfg.Host.DevMode && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter(cfg.Log.Format))

	out, err := output(cfg.Log)
	if err != nil {
		return err
	}
	logrus.SetOutput(out)

	logrus.Infof("Logger initialized - Level: %s, Format: %s, Output: %s",
		level, cfg.Log.Format, cfg.Log.Output)
	return nil
}

func formatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

func output(c LogConfig) (io.Writer, error) {
	switch strings.ToLower(c.Output) {
	case "file", "both":
		if err := os.MkdirAll(filepath.Dir(c.FilePath), 0755); err != nil {
			return nil, err
		}
		rotate := &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
			LocalTime:  true,
		}
		if strings.ToLower(c.Output) == "file" {
			return rotate, nil
		}
		return io.MultiWriter(os.Stdout, rotate), nil
	default:
		return os.Stdout, nil
	}
}
