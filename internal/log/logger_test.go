package log

import (
	"testing"

	"nft-sniper/internal/config"
)

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLogger_JSONEncoding(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Encoding: "json"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Errorf("expected debug level to be enabled")
	}
}

func TestForWallet_NilLogger(t *testing.T) {
	if ForWallet(nil, "sei1a") == nil {
		t.Fatalf("expected nop logger")
	}
}
