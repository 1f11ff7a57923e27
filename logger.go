package swap

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ZapLoggerConfig = zap.Config{
	Level:       zap.NewAtomicLevelAt(zap.DebugLevel),
	Development: false,
	Encoding:    "console",
	EncoderConfig: zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	},
	OutputPaths:      []string{"stdout"},
	ErrorOutputPaths: []string{"stderr"},
}

var ZapLogger = NewZapLogger()
var ZapSugarLogger = NewZapSugarLogger()

var log = ZapSugarLogger

func ZapLoggerConfig() zap.Config {
	return _ZapLoggerConfig
}

// NewZapLogger 创建Logger。设置了环境变量 SWAP_LOG_FILE 时，日志同时写入滚动文件。
func NewZapLogger() *zap.Logger {
	logger, _ := _ZapLoggerConfig.Build()
	if file, ok := os.LookupEnv(EnvKeyLogFile); ok && "" != file {
		fileCore := newFileCore(file)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}
	return logger
}

func NewZapSugarLogger() *zap.SugaredLogger {
	return ZapLogger.Sugar()
}

// 文件日志不使用颜色编码
func newFileCore(file string) zapcore.Core {
	encoderConfig := _ZapLoggerConfig.EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    int(EnvGetInt64(EnvKeyLogFileMaxSize, 20)),
		MaxBackups: int(EnvGetInt64(EnvKeyLogFileMaxBackups, 5)),
		MaxAge:     int(EnvGetInt64(EnvKeyLogFileMaxAge, 30)),
		Compress:   true,
	})
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), writer, _ZapLoggerConfig.Level)
}
