package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Logger оборачивает zap и предоставляет printf- и key-value-методы
type Logger struct {
	sugar *zap.SugaredLogger
}

// Options настройки логгера
type Options struct {
	Level LogLevel
	// JSON включает JSON-формат (production)
	JSON bool
}

// New создает логгер с консольным выводом
func New(level LogLevel) *Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions создает логгер по настройкам
func NewWithOptions(opts Options) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapLevel(opts.Level))
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: base.Sugar()}
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// ParseLevel переводит строку из окружения в LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap возвращает базовый *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// With возвращает дочерний логгер с полями
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(kv...)}
}

// Sync сбрасывает буферы
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}

func (l *Logger) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *Logger) Fatalw(msg string, kv ...interface{}) { l.sugar.Fatalw(msg, kv...) }

// Printf нужен адаптерам сторонних библиотек (cron, telegram)
func (l *Logger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Println нужен адаптеру telegram-bot-api
func (l *Logger) Println(v ...interface{}) {
	l.sugar.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
