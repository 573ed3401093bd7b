package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crossarb/internal/exchange"
	"crossarb/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Engine    EngineConfig
	Exchanges map[string]exchange.Credentials
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД.
// База опциональна: без нее бот работает, но не ведет журнал сделок.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey расшифровывает запечатанные ключи бирж
	// (переменные вида OKX_API_KEY_ENC). Пустой - ключи читаются
	// открытым текстом.
	EncryptionKey string

	// APIPasswordHash - bcrypt хеш пароля HTTP API.
	// Пустой - API доступно без аутентификации.
	APIPasswordHash string
}

// EngineConfig - торговые параметры движка
type EngineConfig struct {
	// SellFee и BuyFee - тейкерские комиссии в долях (0.001 = 0.1%)
	SellFee float64
	BuyFee  float64

	// Additive - поправка к ожидаемой прибыли при сравнении
	// с комиссией перевода
	Additive float64

	// DefaultProcedureTime - оценка длительности перевода в секундах,
	// когда для маршрута нет явного значения
	DefaultProcedureTime float64

	// ProcedureTimes - длительности переводов по маршрутам,
	// формат PROCEDURE_TIMES="okx->htx=1800,htx->okx=2400"
	ProcedureTimes map[string]float64

	// ProbeAddr - адрес проверки выхода в сеть между циклами
	ProbeAddr string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения.
// Список бирж задается EXCHANGES; для каждой биржи обязательны
// <ИМЯ>_API_KEY и <ИМЯ>_SECRET, без них загрузка падает.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "crossarb"),
			User:     getEnv("DB_USER", "crossarb"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
			APIPasswordHash: getEnv("API_PASSWORD_HASH", ""),
		},
		Engine: EngineConfig{
			SellFee:              getEnvAsFloat("SELL_FEE", 0.001),
			BuyFee:               getEnvAsFloat("BUY_FEE", 0.001),
			Additive:             getEnvAsFloat("ADDITIVE", 2.0),
			DefaultProcedureTime: getEnvAsFloat("DEFAULT_PROCEDURE_TIME", 1800),
			ProbeAddr:            getEnv("PROBE_ADDR", "1.1.1.1:53"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	times, err := parseProcedureTimes(getEnv("PROCEDURE_TIMES", ""))
	if err != nil {
		return nil, err
	}
	cfg.Engine.ProcedureTimes = times

	creds, err := loadCredentials(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, err
	}
	cfg.Exchanges = creds

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCredentials читает ключи всех бирж из переменных окружения.
// Запечатанный вариант <ИМЯ>_API_KEY_ENC имеет приоритет и требует
// ENCRYPTION_KEY.
func loadCredentials(encryptionKey string) (map[string]exchange.Credentials, error) {
	names := strings.Split(getEnv("EXCHANGES", strings.Join(exchange.SupportedExchanges(), ",")), ",")

	creds := make(map[string]exchange.Credentials, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		prefix := strings.ToUpper(name)

		apiKey, err := getSecret(prefix+"_API_KEY", encryptionKey)
		if err != nil {
			return nil, err
		}
		secret, err := getSecret(prefix+"_SECRET", encryptionKey)
		if err != nil {
			return nil, err
		}
		password, err := getSecret(prefix+"_PASSWORD", encryptionKey)
		if err != nil {
			return nil, err
		}

		if apiKey == "" {
			return nil, fmt.Errorf("%s_API_KEY is required for exchange %q", prefix, name)
		}
		if secret == "" {
			return nil, fmt.Errorf("%s_SECRET is required for exchange %q", prefix, name)
		}

		creds[name] = exchange.Credentials{
			APIKey:                       apiKey,
			Secret:                       secret,
			Password:                     password,
			Sandbox:                      getEnvAsBool(prefix+"_SANDBOX", false),
			EnableRateLimit:              getEnvAsBool(prefix+"_RATE_LIMIT", true),
			Hostname:                     getEnv(prefix+"_HOSTNAME", ""),
			CreateMarketBuyRequiresPrice: getEnvAsBool(prefix+"_MARKET_BUY_REQUIRES_PRICE", false),
		}
	}
	return creds, nil
}

// getSecret читает секрет открытым текстом или в запечатанном виде
func getSecret(key, encryptionKey string) (string, error) {
	if sealed := os.Getenv(key + "_ENC"); sealed != "" {
		if encryptionKey == "" {
			return "", fmt.Errorf("%s_ENC is set but ENCRYPTION_KEY is missing", key)
		}
		value, err := crypto.DecryptWithKeyString(sealed, encryptionKey)
		if err != nil {
			return "", fmt.Errorf("decrypt %s_ENC: %w", key, err)
		}
		return value, nil
	}
	return os.Getenv(key), nil
}

// parseProcedureTimes разбирает строку вида "okx->htx=1800,htx->okx=2400"
func parseProcedureTimes(raw string) (map[string]float64, error) {
	times := map[string]float64{}
	if raw == "" {
		return times, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		route, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("PROCEDURE_TIMES: malformed entry %q", pair)
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("PROCEDURE_TIMES: bad duration in %q", pair)
		}
		times[strings.TrimSpace(route)] = seconds
	}
	return times, nil
}

// validate проверяет критичные параметры
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Enabled {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required when DB_ENABLED=true")
		}
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if len(c.Exchanges) < 2 {
		return fmt.Errorf("at least 2 exchanges must be configured, got %d", len(c.Exchanges))
	}
	if c.Engine.SellFee < 0 || c.Engine.SellFee >= 1 {
		return fmt.Errorf("SELL_FEE must be in [0, 1), got %v", c.Engine.SellFee)
	}
	if c.Engine.BuyFee < 0 || c.Engine.BuyFee >= 1 {
		return fmt.Errorf("BUY_FEE must be in [0, 1), got %v", c.Engine.BuyFee)
	}
	if c.Engine.DefaultProcedureTime < 0 {
		return fmt.Errorf("DEFAULT_PROCEDURE_TIME cannot be negative, got %v", c.Engine.DefaultProcedureTime)
	}
	if _, _, found := strings.Cut(c.Engine.ProbeAddr, ":"); !found {
		return fmt.Errorf("PROBE_ADDR must be host:port, got %q", c.Engine.ProbeAddr)
	}
	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
