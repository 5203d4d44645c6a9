// Package logging builds the process logger.
package logging

import (
	"os"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/config"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/gelf"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "mixedby"

// New returns a logger writing to stderr and, when GELF_ADDR is set, to a
// GELF UDP endpoint as well. A GELF setup failure is logged, not returned.
func New(cfg *config.Config) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	var enc zapcore.Encoder
	if cfg.Development() {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}

	var gelfErr error
	if cfg.GelfAddr != "" {
		w, err := gelf.New(cfg.GelfAddr, serviceName)
		if err != nil {
			gelfErr = err
		} else {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level))
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(zap.String("service", serviceName))
	if gelfErr != nil {
		logger.Warn("GELF init failed", zap.String("addr", cfg.GelfAddr), zap.Error(gelfErr))
	} else if cfg.GelfAddr != "" {
		logger.Info("GELF logging enabled", zap.String("addr", cfg.GelfAddr))
	}
	return logger
}
