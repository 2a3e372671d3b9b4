package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/lumberjack.v3"
)

type Config struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// Options controls both loggers built by New.
type Options struct {
	Dir     string
	Level   string
	Console bool
}

// Loggers holds the application logger and the feed logger. The feed logger
// only writes to its file and carries raw wire payloads at debug level.
type Loggers struct {
	App  *zap.Logger
	Feed *zap.Logger
}

func (l Loggers) Sync() {
	_ = l.App.Sync()
	_ = l.Feed.Sync()
}

func New(opts Options) (Loggers, error) {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	level, err := resolveLevel(opts.Level)
	if err != nil {
		return Loggers{}, err
	}

	appConfig := Config{
		Filename:   filepath.Join(opts.Dir, "app.log"),
		MaxSize:    5,
		MaxBackups: 10,
		MaxAge:     14,
	}

	feedConfig := Config{
		Filename:   filepath.Join(opts.Dir, "feed.log"),
		MaxSize:    20,
		MaxBackups: 5,
		MaxAge:     7,
	}

	app, err := newLogger(appConfig, level, opts.Console)
	if err != nil {
		return Loggers{}, fmt.Errorf("failed to create app logger: %w", err)
	}
	feed, err := newLogger(feedConfig, level, false)
	if err != nil {
		return Loggers{}, fmt.Errorf("failed to create feed logger: %w", err)
	}
	return Loggers{App: app, Feed: feed}, nil
}

// resolveLevel prefers LOG_LEVEL over the configured level. An unparsable
// LOG_LEVEL is ignored; an unparsable configured level is an error.
func resolveLevel(configured string) (zapcore.Level, error) {
	if levelEnv := os.Getenv("LOG_LEVEL"); levelEnv != "" {
		if parsedLevel, err := zapcore.ParseLevel(levelEnv); err == nil {
			return parsedLevel, nil
		}
	}
	if configured == "" {
		return zap.InfoLevel, nil
	}
	parsedLevel, err := zapcore.ParseLevel(configured)
	if err != nil {
		return zap.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return parsedLevel, nil
}

func newLogger(config Config, level zapcore.Level, useConsole bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(config.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileHandler, err := lumberjack.New(
		lumberjack.WithFileName(config.Filename),
		lumberjack.WithMaxBytes(int64(config.MaxSize*1024*1024)),
		lumberjack.WithMaxBackups(config.MaxBackups),
		lumberjack.WithMaxDays(config.MaxAge),
		lumberjack.WithCompress(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file handler: %w", err)
	}

	logLevel := zap.NewAtomicLevelAt(level)

	productionCfg := zap.NewProductionEncoderConfig()
	productionCfg.TimeKey = "timestamp"
	productionCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	developmentCfg := zap.NewDevelopmentEncoderConfig()
	developmentCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(developmentCfg)
	fileEncoder := zapcore.NewJSONEncoder(productionCfg)

	var cores []zapcore.Core
	if useConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), logLevel))
	}
	cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(fileHandler), logLevel))

	return zap.New(zapcore.NewTee(cores...)), nil
}
