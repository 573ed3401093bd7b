package utils

import (
	"testing"
)

// ============================================================
// Тесты InitLogger
// ============================================================

func TestInitLoggerLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "DEBUG", "INFO"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			if err := InitLogger(level, "console"); err != nil {
				t.Fatalf("InitLogger(%q): %v", level, err)
			}
		})
	}
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	if err := InitLogger("loud", "console"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestInitLoggerJSONFormat(t *testing.T) {
	if err := InitLogger("info", "json"); err != nil {
		t.Fatalf("InitLogger json: %v", err)
	}
}

func TestNamedBeforeInit(t *testing.T) {
	log := Named("Test.component")
	if log == nil {
		t.Fatal("Named returned nil")
	}
	log.Infow("should not panic", "key", "value")
}

func TestLoggerNotNil(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger returned nil")
	}
}
