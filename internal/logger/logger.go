package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the application logger is constructed.
type Config struct {
	DevMode     bool   `env:"LOG_DEV_MODE" envDefault:"false"`
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Encoding    string `env:"LOG_ENCODING" envDefault:"json"`
	ServiceName string `env:"LOG_SERVICE_NAME" envDefault:"mailstack"`
}

// Logger is the interface every package in this module takes a dependency
// on instead of *zap.Logger directly, so call sites can be swapped for a
// test double without dragging zap into every package.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Logger() *zap.Logger
	With(fields ...zap.Field) Logger
}

type AppLogger struct {
	cfg *Config
	z   *zap.Logger
	s   *zap.SugaredLogger
}

// NewAppLogger builds a logger that has not yet been initialized; call
// InitLogger before use.
func NewAppLogger(cfg *Config) *AppLogger {
	return &AppLogger{cfg: cfg}
}

func (a *AppLogger) InitLogger() error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(a.cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if a.cfg.DevMode {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = a.cfg.Encoding
	zcfg.InitialFields = map[string]interface{}{
		"service": a.cfg.ServiceName,
	}

	z, err := zcfg.Build()
	if err != nil {
		return err
	}

	a.z = z
	a.s = z.Sugar()
	return nil
}

func (a *AppLogger) Debug(msg string, fields ...zap.Field) { a.z.Debug(msg, fields...) }
func (a *AppLogger) Info(msg string, fields ...zap.Field)  { a.z.Info(msg, fields...) }
func (a *AppLogger) Warn(msg string, fields ...zap.Field)  { a.z.Warn(msg, fields...) }
func (a *AppLogger) Error(msg string, fields ...zap.Field) { a.z.Error(msg, fields...) }

func (a *AppLogger) Infof(format string, args ...interface{})  { a.s.Infof(format, args...) }
func (a *AppLogger) Errorf(format string, args ...interface{}) { a.s.Errorf(format, args...) }

func (a *AppLogger) Logger() *zap.Logger { return a.z }

func (a *AppLogger) With(fields ...zap.Field) Logger {
	return &AppLogger{cfg: a.cfg, z: a.z.With(fields...), s: a.z.With(fields...).Sugar()}
}
