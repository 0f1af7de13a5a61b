package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nft-sniper/internal/config"
)

const serviceName = "nft-sniper"

// NewLogger 根据配置创建 zap.Logger。
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		return nil, fmt.Errorf("解析日志级别失败: %w", err)
	}

	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	if encoding == "" {
		encoding = "console"
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(encoding),
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
		InitialFields:    map[string]interface{}{"service": serviceName},
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("创建日志实例失败: %w", err)
	}

	return logger, nil
}

// encoderConfig 控制台输出带颜色级别，JSON 输出保持纯文本级别便于采集。
func encoderConfig(encoding string) zapcore.EncoderConfig {
	base := zap.NewProductionEncoderConfig()

	levelEncoder := zapcore.CapitalLevelEncoder
	if encoding == "console" {
		levelEncoder = zapcore.CapitalColorLevelEncoder
	}

	return zapcore.EncoderConfig{
		MessageKey:     base.MessageKey,
		LevelKey:       base.LevelKey,
		TimeKey:        "ts",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		StacktraceKey:  base.StacktraceKey,
		LineEnding:     base.LineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ForWallet 返回带钱包地址字段的子 logger。
func ForWallet(logger *zap.Logger, address string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named("wallet").With(zap.String("wallet", address))
}
