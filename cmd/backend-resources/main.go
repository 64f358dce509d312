// Точка входа backend-resources — сервис управления пользователями поверх Keycloak.
// Загружает конфигурацию, создаёт Keycloak Admin API клиент, при наличии
// PostgreSQL применяет миграции и включает журнал аудита, собирает сервисный
// слой и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/itm-space/backend-resources/internal/api/handlers"
	"github.com/itm-space/backend-resources/internal/api/middleware"
	"github.com/itm-space/backend-resources/internal/api/openapi"
	"github.com/itm-space/backend-resources/internal/config"
	"github.com/itm-space/backend-resources/internal/database"
	"github.com/itm-space/backend-resources/internal/keycloak"
	"github.com/itm-space/backend-resources/internal/repository"
	"github.com/itm-space/backend-resources/internal/server"
	"github.com/itm-space/backend-resources/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("backend-resources запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("BR_DEPHEALTH_GROUP") == "" {
		logger.Warn("BR_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx := context.Background()

	// 3. Keycloak Admin API клиент (client_credentials)
	kcHTTPClient, err := middleware.HTTPClientWithCA(cfg.CACertPath, cfg.KeycloakTimeout)
	if err != nil {
		logger.Error("Ошибка загрузки CA-сертификата",
			slog.String("path", cfg.CACertPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		kcHTTPClient,
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 4. PostgreSQL (опционально): миграции, пул, журнал аудита
	var (
		auditRepo repository.AuditRepository
		pgChecker handlers.ReadinessChecker
		pgDB      *sql.DB
	)
	if cfg.DatabaseEnabled() {
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		auditRepo = repository.NewAuditRepository(pool)
		pgChecker = database.NewReadinessChecker(pool)
	} else {
		logger.Info("BR_DB_HOST не задан, журнал аудита отключён")
	}

	// 5. Services
	userCache := service.NewUserCache(cfg.UserCacheSize, cfg.UserCacheTTL)
	auditSvc := service.NewAuditService(auditRepo, logger)
	usersSvc := service.NewUserService(kcClient, userCache, auditSvc, logger)

	// 6. Readiness checkers (Keycloak realm + JWKS + PostgreSQL)
	kcChecker := keycloak.NewReadinessChecker(kcClient, cfg.KeycloakReadinessTimeout)
	jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.KeycloakReadinessTimeout)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	healthHandler := handlers.NewHealthHandler(kcChecker, jwksChecker, pgChecker)

	// 7. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, usersSvc, logger)

	// 8. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.CACertPath,
		cfg.JWTIssuer,
		cfg.GroupRoles,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("required_role", cfg.RequiredRole),
	)

	// 9. Валидация запросов по OpenAPI контракту
	doc, err := openapi.Load()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.RequestValidator(doc, "/api/", logger)
	if err != nil {
		logger.Error("Ошибка создания OpenAPI валидатора", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. topologymetrics — мониторинг зависимостей (Keycloak + PostgreSQL)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:             "backend-resources",
		Group:                 cfg.DephealthGroup,
		KeycloakJWKSURL:       cfg.JWTJWKSURL,
		KeycloakTLSSkipVerify: cfg.CACertPath != "",
		DB:                    pgDB,
		PGConnURL:             cfg.DatabaseURL(),
		CheckInterval:         cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.Any("dependencies", dephealthSvc.Dependencies()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 11. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, jwtAuth, validator)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("backend-resources остановлен")
}
