// Пакет server — HTTP-сервер backend-resources с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/itm-space/backend-resources/internal/api/handlers"
	"github.com/itm-space/backend-resources/internal/api/middleware"
	"github.com/itm-space/backend-resources/internal/config"
)

// Server — HTTP-сервер backend-resources.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (nil только в тестах: claims кладутся в контекст заранее).
// validator — валидация запросов по OpenAPI контракту (может быть nil).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler handlers.ServerInterface,
	jwtAuth *middleware.JWTAuth,
	validator func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(chimw.Recoverer)

	// Health, metrics и контракт проверяются без JWT.
	handlers.RegisterPublicRoutes(router, handler)

	// /api/users — только для пользователей с требуемой ролью.
	router.Group(func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}
		r.Use(middleware.RequireRole(cfg.RequiredRole))
		if validator != nil {
			r.Use(validator)
		}
		handlers.RegisterUserRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой HTTP handler (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.RunContext(ctx)
}

// RunContext запускает сервер до отмены ctx, затем выполняет graceful shutdown
// с таймаутом BR_SHUTDOWN_TIMEOUT.
func (s *Server) RunContext(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
