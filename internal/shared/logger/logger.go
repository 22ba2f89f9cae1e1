package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option ajusta a construção do logger
type Option func(*options)

type options struct {
	file string
}

// WithFile grava também em arquivo rotacionado (JSON), além da saída padrão.
// Caminho vazio não faz nada.
func WithFile(path string) Option { return func(o *options) { o.file = path } }

func New(serviceName string, env string, opts ...Option) (*zap.Logger, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfg := zap.NewProductionConfig()
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	}

	// sempre garantir que serviço e env entrem como campos padrão
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var buildOpts []zap.Option
	if o.file != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg.EncoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   o.file,
				MaxSize:    100, // MB
				MaxBackups: 5,
				MaxAge:     14, // dias
				Compress:   true,
			}),
			cfg.Level,
		)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	// campos depois do tee, para que o arquivo também os receba
	buildOpts = append(buildOpts, zap.Fields(
		zap.String("service", serviceName),
		zap.String("env", env),
	))

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		return nil, err
	}
	return l, nil
}
