package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the key/value logger handed to every component.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
	With(kv ...any) Logger
	Zap() *zap.Logger
}

// level is shared by every logger built through New so it can be changed at runtime.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

type zapLogger struct{ s *zap.SugaredLogger }

// New builds the process logger. env "dev" selects the development config
// (stack traces on warn); asJSON false switches to console encoding.
func New(env, lvl string, asJSON bool) Logger {
	SetLevel(lvl)
	var zc zap.Config
	if env == "dev" || env == "test" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	}
	zc.Level = level
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if asJSON {
		zc.Encoding = "json"
	} else {
		zc.Encoding = "console"
	}
	z, err := zc.Build()
	if err != nil {
		// only reachable with a broken encoder config; keep the process logging
		z = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zc.EncoderConfig), zapcore.Lock(os.Stderr), level))
	}
	return FromZap(z)
}

// FromZap wraps an existing zap logger, e.g. an observer core in tests.
func FromZap(z *zap.Logger) Logger { return &zapLogger{s: z.Sugar()} }

// Nop discards everything.
func Nop() Logger { return FromZap(zap.NewNop()) }

// SetLevel updates the global log level; unknown values fall back to info.
func SetLevel(lvl string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(lvl)))); err != nil {
		l = zapcore.InfoLevel
	}
	level.SetLevel(l)
}

func GetLevel() string { return level.Level().String() }

// Level exposes the atomic level; it implements http.Handler for GET/PUT.
func Level() zap.AtomicLevel { return level }

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.s.Fatalw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger { return &zapLogger{s: l.s.With(kv...)} }

func (l *zapLogger) Zap() *zap.Logger { return l.s.Desugar() }
