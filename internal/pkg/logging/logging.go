package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the production logger. With a file set, entries are written to
// stdout and to a rolling file.
func New(level, file string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = atomicLevel
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if file == "" {
		return logCfg.Build(opts...)
	}

	rolling := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	encoder := zapcore.NewJSONEncoder(logCfg.EncoderConfig)
	ws := zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stdout), zapcore.AddSync(rolling))
	return zap.New(zapcore.NewCore(encoder, ws, atomicLevel), opts...), nil
}
