// Package utils builds the zap logger used by the CLI drivers, which hand
// it to the channelengine package via WithLogger — kept nearly verbatim from
// the teacher's utils/log.go: a lumberjack-rotated JSON file sink behind a
// level filter, a custom timestamp encoder.
package utils

import (
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"channelengine/config"
)

// Logger is a ready-to-use logger built from whatever config.GlobalCfg
// held at package init. Code that wants a config built after GlobalCfg
// was reloaded should call New(config.GlobalCfg.Log) instead.
var Logger *zap.Logger

func init() {
	logCfg := config.Log{Level: "info", Path: "channelengine.log"}
	if config.GlobalCfg != nil && config.GlobalCfg.Log.Level != "" {
		logCfg = config.GlobalCfg.Log
	}
	Logger = New(logCfg)
}

// New builds a zap.Logger writing JSON lines to a lumberjack-rotated file
// at logCfg.Path, filtered to logCfg.Level and above.
func New(logCfg config.Log) *zap.Logger {
	level, ok := levelMap[logCfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= level
	})

	path := logCfg.Path
	if path == "" {
		path = "channelengine.log"
	}
	hook := lumberjack.Logger{
		Filename:   path,
		MaxSize:    1024,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
	files := zapcore.AddSync(&hook)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	core := zapcore.NewTee(zapcore.NewCore(fileEncoder, files, enabler))

	return zap.New(core, zap.AddCaller(), zap.Development())
}

var levelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

// TimeEncoder formats timestamps the way the teacher's logger does.
func TimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}
