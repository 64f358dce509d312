// routes.go — привязка ServerInterface к chi-роутеру.
// Разбор path-параметров выполняется через oapi-codegen runtime.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/itm-space/backend-resources/internal/api/errors"
)

// ServerInterface — все endpoints HTTP API.
type ServerInterface interface {
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// GET /openapi.yaml
	GetOpenAPI(w http.ResponseWriter, r *http.Request)
	// POST /api/users
	CreateUser(w http.ResponseWriter, r *http.Request)
	// GET /api/users/hello
	Hello(w http.ResponseWriter, r *http.Request)
	// GET /api/users/{id}
	GetUserByID(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
}

// RegisterPublicRoutes регистрирует endpoints без аутентификации.
func RegisterPublicRoutes(r chi.Router, si ServerInterface) {
	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)
	r.Get("/openapi.yaml", si.GetOpenAPI)
}

// RegisterUserRoutes регистрирует /api/users endpoints.
// Аутентификация и проверка роли навешиваются вызывающим.
func RegisterUserRoutes(r chi.Router, si ServerInterface) {
	r.Post("/api/users", si.CreateUser)
	r.Get("/api/users/hello", si.Hello)
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		var id openapi_types.UUID

		err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
			runtime.BindStyledParameterOptions{
				ParamLocation: runtime.ParamLocationPath,
				Explode:       false,
				Required:      true,
			})
		if err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Невалидный параметр id: %v", err))
			return
		}

		si.GetUserByID(w, r, id)
	})
}
