package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Chain    ChainConfig
	Catalog  CatalogConfig
	Lending  LendingConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string // мастер-ключ шифрования приватных ключей кошельков
	SessionTimeout int
}

// ChainConfig - настройки подключения к EVM-цепочке
type ChainConfig struct {
	RPCURL        string
	ChainID       int64
	MorphoAddress string // адрес контракта Morpho Blue

	// Hex-ключ подписанта транзакций. Пусто = взять дефолтный кошелёк из БД.
	SignerKey string

	// Подтверждения и опрос receipt'ов
	Confirmations uint64
	PollInterval  time.Duration

	// Лимит RPC запросов в секунду (0 = без лимита на стороне клиента)
	RateLimit float64
	RateBurst float64
}

// CatalogConfig - настройки выгрузки каталога из Morpho API
type CatalogConfig struct {
	URL             string
	RefreshInterval time.Duration
	PageSize        int
	RequestTimeout  time.Duration
}

// LendingConfig - настройки транзакционного слоя
type LendingConfig struct {
	// Дебаунс ввода суммы перед проверками allowance/баланса
	DebounceWindow time.Duration
	// Таймаут полного цикла approve → act → confirm
	SubmitTimeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
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
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "morpho"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Chain: ChainConfig{
			RPCURL:        getEnv("RPC_URL", ""),
			ChainID:       int64(getEnvAsInt("CHAIN_ID", 1)),
			MorphoAddress: getEnv("MORPHO_ADDRESS", "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"),
			SignerKey:     getEnv("SIGNER_PRIVATE_KEY", ""),
			Confirmations: uint64(getEnvAsInt("TX_CONFIRMATIONS", 1)),
			PollInterval:  getEnvAsDuration("TX_POLL_INTERVAL", 4*time.Second),
			RateLimit:     getEnvAsFloat("RPC_RATE_LIMIT", 10),
			RateBurst:     getEnvAsFloat("RPC_RATE_BURST", 20),
		},
		Catalog: CatalogConfig{
			URL:             getEnv("MORPHO_API_URL", "https://blue-api.morpho.org/graphql"),
			RefreshInterval: getEnvAsDuration("CATALOG_REFRESH_INTERVAL", 5*time.Minute),
			PageSize:        getEnvAsInt("CATALOG_PAGE_SIZE", 100),
			RequestTimeout:  getEnvAsDuration("CATALOG_REQUEST_TIMEOUT", 15*time.Second),
		},
		Lending: LendingConfig{
			DebounceWindow: getEnvAsDuration("DEBOUNCE_WINDOW", 500*time.Millisecond),
			SubmitTimeout:  getEnvAsDuration("SUBMIT_TIMEOUT", 10*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования ключей кошельков
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting wallet keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// JWT_SECRET обязателен и не должен быть default значением
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required for authentication")
	}

	if c.Security.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be changed from default value in production")
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// RPC_URL обязателен: без цепочки сервис бесполезен
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive, got %d", c.Chain.ChainID)
	}

	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("TX_POLL_INTERVAL must be positive, got %v", c.Chain.PollInterval)
	}

	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > 1000 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be between 1 and 1000, got %d", c.Catalog.PageSize)
	}

	if c.Catalog.RefreshInterval < 10*time.Second {
		return fmt.Errorf("CATALOG_REFRESH_INTERVAL must be at least 10s, got %v", c.Catalog.RefreshInterval)
	}

	if c.Lending.DebounceWindow <= 0 {
		return fmt.Errorf("DEBOUNCE_WINDOW must be positive, got %v", c.Lending.DebounceWindow)
	}

	// Валидация SessionTimeout
	if c.Security.SessionTimeout < 60 {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 60 seconds, got %d", c.Security.SessionTimeout)
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
