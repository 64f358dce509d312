// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// backend-resources мониторит:
//   - Keycloak — HTTP checker к JWKS endpoint realm (critical)
//   - PostgreSQL — SQL checker через pgxpool (только при включённом журнале аудита, не critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthConfig — параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения.
	ServiceID string
	// Group — имя группы в метриках (BR_DEPHEALTH_GROUP).
	Group string
	// KeycloakJWKSURL — URL JWKS endpoint Keycloak.
	KeycloakJWKSURL string
	// KeycloakTLSSkipVerify — не проверять сертификат Keycloak (dev-среда).
	KeycloakTLSSkipVerify bool
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil — PostgreSQL не мониторится.
	DB *sql.DB
	// PGConnURL — URL PostgreSQL для лейблов метрик (без пароля).
	PGConnURL string
	// CheckInterval — интервал проверки (BR_DEPHEALTH_CHECK_INTERVAL).
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		// По умолчанию dephealth проверяет /health, но у Keycloak этот endpoint
		// доступен только на management порту. Проверяем сам JWKS realm.
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(cfg.KeycloakJWKSURL),
			dephealth.WithHTTPHealthPath(jwksHealthPath(cfg.KeycloakJWKSURL)),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(cfg.KeycloakTLSSkipVerify),
		),
	}
	deps := []string{"keycloak-jwks"}

	// Журнал аудита не критичен для обслуживания запросов
	if cfg.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		))
		deps = append(deps, "postgresql")
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   deps,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// jwksHealthPath возвращает path JWKS URL для HTTP-проверки ("/health", если path пуст).
func jwksHealthPath(jwksURL string) string {
	if parsed, err := url.Parse(jwksURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return "/health"
}

// Dependencies возвращает имена мониторируемых зависимостей.
func (ds *DephealthService) Dependencies() []string {
	return ds.deps
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Any("dependencies", ds.deps))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}
