// health.go — обработчики health endpoints backend-resources.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (Keycloak realm, JWKS, PostgreSQL если включён)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itm-space/backend-resources/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "backend-resources"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	kcChecker   ReadinessChecker
	jwksChecker ReadinessChecker
	pgChecker   ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// kcChecker — realm Keycloak, jwksChecker — JWKS endpoint.
// Для nil kcChecker/jwksChecker readiness вернёт "fail".
// pgChecker == nil означает, что журнал аудита выключен: проверка не выполняется.
func NewHealthHandler(kcChecker, jwksChecker, pgChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		kcChecker:   kcChecker,
		jwksChecker: jwksChecker,
		pgChecker:   pgChecker,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Keycloak   healthCheckResult  `json:"keycloak"`
		JWKS       healthCheckResult  `json:"jwks"`
		PostgreSQL *healthCheckResult `json:"postgresql,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	resp.Checks.Keycloak = runCheck(h.kcChecker)
	resp.Checks.JWKS = runCheck(h.jwksChecker)
	statuses := []string{resp.Checks.Keycloak.Status, resp.Checks.JWKS.Status}

	if h.pgChecker != nil {
		pg := runCheck(h.pgChecker)
		resp.Checks.PostgreSQL = &pg
		statuses = append(statuses, pg.Status)
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// runCheck выполняет проверку; nil checker — "fail".
func runCheck(c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return healthCheckResult{Status: status, Message: msg}
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
