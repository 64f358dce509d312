// Пакет handlers — HTTP-обработчики backend-resources.
// handler.go — основной обработчик API: делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/itm-space/backend-resources/internal/api/errors"
	"github.com/itm-space/backend-resources/internal/api/middleware"
	"github.com/itm-space/backend-resources/internal/api/openapi"
	"github.com/itm-space/backend-resources/internal/domain/model"
	"github.com/itm-space/backend-resources/internal/service"
)

// UserService — операции с пользователями, нужные обработчикам.
// Реализуется *service.UserService.
type UserService interface {
	CreateUser(ctx context.Context, req *model.UserRequest) (string, error)
	GetUserByID(ctx context.Context, id string) (*model.UserResponse, error)
	Hello(claims *middleware.AuthClaims) string
}

// APIHandler — основной обработчик API.
// Реализует ServerInterface, делегируя запросы в сервисный слой.
type APIHandler struct {
	health *HealthHandler
	users  UserService
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, users UserService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		users:  users,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPI — GET /openapi.yaml, встроенный контракт API.
func (h *APIHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Raw())
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError записывает ошибку сервисного слоя.
// BackendError отдаётся со своим статусом, остальное — 500.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	if be, ok := service.AsBackendError(err); ok {
		apierrors.WriteStatus(w, be.Status, be.Message)
		return
	}
	h.logger.Error("Необработанная ошибка сервиса", slog.String("error", err.Error()))
	apierrors.InternalError(w, "Внутренняя ошибка сервера")
}
