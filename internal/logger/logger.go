package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop().Sugar()

// Init builds the process logger. "debug" gives the development encoder,
// anything else the JSON production one at the requested level.
func Init(level string) {
	var (
		l   *zap.Logger
		err error
	)
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "debug" {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		var zl zapcore.Level
		if uerr := zl.UnmarshalText([]byte(lvl)); uerr == nil && lvl != "" {
			cfg.Level = zap.NewAtomicLevelAt(zl)
		}
		l, err = cfg.Build()
	}
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

func Sync() {
	_ = log.Sync()
}

func Debug(msg string, kv ...interface{}) {
	log.Debugw(msg, kv...)
}

func Info(msg string, kv ...interface{}) {
	log.Infow(msg, kv...)
}

func Warn(msg string, kv ...interface{}) {
	log.Warnw(msg, kv...)
}

func Error(msg string, kv ...interface{}) {
	log.Errorw(msg, kv...)
}
