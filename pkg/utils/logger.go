package utils

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка структурированного логирования
//
// Назначение:
// Единая точка инициализации zap логгера для всех компонентов движка.
// Каждый компонент получает именованный логгер через Named("Trader.okx"),
// имя попадает в поле "logger" каждой записи.
//
// Форматы:
// - "console" - человекочитаемый вывод для разработки
// - "json" - структурированный вывод для продакшена

var (
	loggerMu sync.RWMutex
	baseLog  = zap.NewNop()
)

// InitLogger инициализирует глобальный логгер.
//
// level: debug, info, warn, error (регистр не важен)
// format: console или json
func InitLogger(level, format string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return err
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}

	loggerMu.Lock()
	baseLog = log
	loggerMu.Unlock()
	return nil
}

// Logger возвращает базовый логгер.
// До вызова InitLogger возвращает no-op логгер, удобно в тестах.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLog
}

// Named возвращает именованный sugared логгер для компонента.
//
// Пример: utils.Named("Connection.okx")
func Named(name string) *zap.SugaredLogger {
	return Logger().Named(name).Sugar()
}

// Sync сбрасывает буферизованные записи. Вызывать при завершении.
func Sync() {
	_ = Logger().Sync()
}
