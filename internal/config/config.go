// Пакет config — загрузка и валидация конфигурации backend-resources
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itm-space/backend-resources/internal/domain/rbac"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Keycloak ---

	// URL Keycloak (например, https://keycloak.itm.lan)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string
	// Таймаут HTTP-клиента Keycloak Admin API
	KeycloakTimeout time.Duration
	// Таймаут проверки готовности Keycloak
	KeycloakReadinessTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с Keycloak (опционально)
	CACertPath string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration

	// --- Авторизация ---

	// Роль, необходимая для доступа к /api/users
	RequiredRole string
	// Маппинг групп Keycloak → роли (group → role)
	GroupRoles map[string]string

	// --- Кэш пользователей ---

	// Максимальное число записей в кэше (0 — кэш отключён)
	UserCacheSize int
	// Время жизни записи в кэше
	UserCacheTTL time.Duration

	// --- PostgreSQL (журнал аудита, опционально) ---

	// Хост PostgreSQL; пустое значение отключает журнал аудита
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// BR_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("BR_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Keycloak ---

	cfg.KeycloakURL, err = getEnvRequired("BR_KEYCLOAK_URL")
	if err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	// BR_KEYCLOAK_REALM — realm (по умолчанию itm)
	cfg.KeycloakRealm = getEnvDefault("BR_KEYCLOAK_REALM", "itm")

	cfg.KeycloakClientID, err = getEnvRequired("BR_KEYCLOAK_CLIENT_ID")
	if err != nil {
		return nil, err
	}

	cfg.KeycloakClientSecret, err = getEnvRequired("BR_KEYCLOAK_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	cfg.KeycloakTimeout, err = getEnvDuration("BR_KEYCLOAK_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_KEYCLOAK_TIMEOUT: %w", err)
	}

	cfg.KeycloakReadinessTimeout, err = getEnvDuration("BR_KEYCLOAK_READINESS_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_KEYCLOAK_READINESS_TIMEOUT: %w", err)
	}

	cfg.CACertPath = getEnvDefault("BR_CA_CERT_PATH", "")

	// --- JWT ---

	// BR_JWT_ISSUER — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTIssuer = getEnvDefault("BR_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))

	// BR_JWT_JWKS_URL — авто-вычисляется из KeycloakURL, если не задан
	cfg.JWTJWKSURL = getEnvDefault("BR_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWTLeeway, err = getEnvDuration("BR_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSClientTimeout, err = getEnvDuration("BR_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("BR_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BR_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- Авторизация ---

	cfg.RequiredRole = getEnvDefault("BR_REQUIRED_ROLE", rbac.RoleModerator)

	// BR_GROUP_ROLES — "group:ROLE,group2:ROLE2" (по умолчанию moderators:MODERATOR)
	cfg.GroupRoles, err = parseGroupRoles(getEnvDefault("BR_GROUP_ROLES", "moderators:MODERATOR"))
	if err != nil {
		return nil, fmt.Errorf("BR_GROUP_ROLES: %w", err)
	}

	// --- Кэш пользователей ---

	cfg.UserCacheSize, err = getEnvInt("BR_USER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("BR_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 0 {
		return nil, fmt.Errorf("BR_USER_CACHE_SIZE: значение %d не может быть отрицательным", cfg.UserCacheSize)
	}

	cfg.UserCacheTTL, err = getEnvDuration("BR_USER_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_USER_CACHE_TTL: %w", err)
	}

	// --- PostgreSQL ---

	// BR_DB_HOST — если не задан, журнал аудита отключён
	cfg.DBHost = getEnvDefault("BR_DB_HOST", "")
	if cfg.DBHost != "" {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("BR_DEPHEALTH_GROUP", "itm-space")

	cfg.DephealthCheckInterval, err = getEnvDuration("BR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("BR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BR_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase читает параметры PostgreSQL. Вызывается только при заданном BR_DB_HOST.
func loadDatabase(cfg *Config) error {
	var err error

	cfg.DBPort, err = getEnvInt("BR_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("BR_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("BR_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("BR_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("BR_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("BR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("BR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	return nil
}

// DatabaseEnabled сообщает, настроено ли подключение к PostgreSQL.
func (c *Config) DatabaseEnabled() bool {
	return c.DBHost != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseGroupRoles разбирает список пар "group:ROLE" в map.
func parseGroupRoles(s string) (map[string]string, error) {
	pairs := parseCSV(s)
	result := make(map[string]string, len(pairs))
	for _, p := range pairs {
		group, role, ok := strings.Cut(p, ":")
		group = strings.TrimSpace(group)
		role = strings.TrimSpace(role)
		if !ok || group == "" || role == "" {
			return nil, fmt.Errorf("некорректная пара %q, ожидается group:ROLE", p)
		}
		result[group] = role
	}
	return result, nil
}
